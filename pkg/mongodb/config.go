package mongodb

type MongoConfig struct {
	Host       string `yaml:"host"`
	DBName     string `yaml:"dbname"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	AuthSource string `yaml:"authSource"`
	// 分片集合名前缀，live_2025_06_01
	CollectionPrefix string `yaml:"collectionPrefix"`
	// 首次写入分片时建索引
	EnsureIndexes bool `yaml:"ensureIndexes"`
}

// URI 拼出连接串；账号走 options.Credential，不拼进 URI
func (c MongoConfig) URI() string {
	return "mongodb://" + c.Host
}

// HasAuth 未配置用户名时不设置认证
func (c MongoConfig) HasAuth() bool {
	return c.Username != ""
}
