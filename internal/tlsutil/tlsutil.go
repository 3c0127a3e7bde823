// Package tlsutil 为出站 HTTP 提供统一的 TLS 加固配置。
// 推理端点是进程里唯一的大流量出站通道：批内并发打同一个 host,
// 请求体是内联 base64 截图,连接复用参数按这个形状调。
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// aeadSuites 列出接受的 TLS 1.2 套件。TLS 1.3 的套件由标准库固定,
// 不在此配置。
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// ClientConfig 返回加固的 TLS 客户端配置:TLS 1.2 起步,仅 AEAD 套件。
func ClientConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: aeadSuites,
	}
}

// InferenceTransport 返回面向单推理端点的传输层。空闲连接数按
// 批内并发上限配,写缓冲放大到 64KiB 以承载内联图片负载。
func InferenceTransport() *http.Transport {
	return &http.Transport{
		TLSClientConfig: ClientConfig(),
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     2 * time.Minute,
		TLSHandshakeTimeout: 10 * time.Second,
		WriteBufferSize:     64 << 10,
	}
}

// SecureHTTPClient 在 InferenceTransport 外加整体超时。
// 可直接替换 &http.Client{Timeout: timeout}。
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: InferenceTransport(),
	}
}
