package browser

// 视频元素操作的 JS 片段。均为 IIFE,结果经 JSON 反序列化,
// 带 %d / %f 占位符的片段先用 fmt.Sprintf 填充。

// jsDetectPlayer 在页面所有 video 元素中选出画面面积最大且
// 已就绪的那个。
const jsDetectPlayer = `(() => {
	const vids = Array.from(document.querySelectorAll('video'));
	let best = -1, bestArea = -1;
	for (let i = 0; i < vids.length; i++) {
		const v = vids[i];
		const r = v.getBoundingClientRect();
		const area = r.width * r.height;
		const usable = v.readyState >= 2 || (isFinite(v.duration) && v.duration > 0);
		if (usable && area > bestArea) { best = i; bestArea = area; }
	}
	return best < 0 ? {found: false, index: 0} : {found: true, index: best};
})()`

// jsSeek 占位符:下标、百分比。先暂停再寻址,保证画面静止。
const jsSeek = `(() => {
	const v = document.querySelectorAll('video')[%d];
	if (!v) return false;
	const d = isFinite(v.duration) ? v.duration : 0;
	if (d <= 0) return false;
	let t = d * %f / 100;
	if (t < 0) t = 0;
	if (t > d) t = d;
	v.pause();
	v.currentTime = t;
	return true;
})()`

// jsIsStable 占位符:下标。寻址结束且缓冲足够即视为稳定。
const jsIsStable = `(() => {
	const v = document.querySelectorAll('video')[%d];
	if (!v) return false;
	return !v.seeking && v.readyState >= 2;
})()`

// jsCurrentTime 占位符:下标。
const jsCurrentTime = `(() => {
	const v = document.querySelectorAll('video')[%d];
	return v && isFinite(v.currentTime) ? v.currentTime : 0;
})()`

// jsDuration 占位符:下标。直播流等无时长的场景返回 0。
const jsDuration = `(() => {
	const v = document.querySelectorAll('video')[%d];
	return v && isFinite(v.duration) ? v.duration : 0;
})()`

// jsMetadata 占位符:下标。键名与 types.VideoMetadata 的 JSON
// 标签一致。
const jsMetadata = `(() => {
	const v = document.querySelectorAll('video')[%d];
	if (!v) return {duration: 0, current_time: 0, paused: true, ended: false, ready_state: 0};
	return {
		duration: isFinite(v.duration) ? v.duration : 0,
		current_time: isFinite(v.currentTime) ? v.currentTime : 0,
		paused: v.paused,
		ended: v.ended,
		ready_state: v.readyState,
		width: v.videoWidth,
		height: v.videoHeight,
		title: document.title,
		url: location.href
	};
})()`
