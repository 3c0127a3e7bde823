package migration

import (
	"fmt"

	appconfig "github.com/BaSui01/videoflow/config"
)

// NewMigratorFromDatabaseConfig 从应用的数据库配置创建迁移器。
// BuildDatabaseURL 按方言取用字段:sqlite 只看 Name(即文件路径),
// mysql 不看 SSLMode,这里不用再按类型分发。
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode),
	})
}

// NewMigratorFromURL 从数据库 URL 创建迁移器
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
	})
}
