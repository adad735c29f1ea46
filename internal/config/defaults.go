package config

// ApplyDefaults sets default values for any zero values in cfg. The defaults
// mirror the standard OpenClaw layout under the home directory.
func ApplyDefaults(cfg *Config) {
	if cfg.Sessions.Dir == "" {
		cfg.Sessions.Dir = ".openclaw/agents/main/sessions"
	}
	if cfg.Sessions.ChunkSize == 0 {
		cfg.Sessions.ChunkSize = 20
	}
	if cfg.Sessions.ChunkOverlap == 0 {
		cfg.Sessions.ChunkOverlap = 5
	}
	if cfg.Workspace.Dir == "" {
		cfg.Workspace.Dir = ".openclaw/workspace"
	}
	if cfg.Workspace.Extensions == nil {
		cfg.Workspace.Extensions = []string{
			".md", ".txt", ".rst",
			".py", ".js", ".ts", ".go", ".sh",
			".json", ".yaml", ".yml", ".toml",
			".pdf", ".docx", ".xlsx",
		}
	}
	if cfg.Workspace.MaxFileSizeMB == 0 {
		cfg.Workspace.MaxFileSizeMB = 5
	}
	if cfg.Workspace.ChunkSize == 0 {
		cfg.Workspace.ChunkSize = 200
	}
	if cfg.Workspace.ChunkOverlap == 0 {
		cfg.Workspace.ChunkOverlap = 20
	}
	if cfg.Skills.Dirs == nil {
		cfg.Skills.Dirs = []string{
			"/usr/lib/node_modules/openclaw/skills",
			".openclaw/workspace/skills",
		}
	}
	if cfg.Store.DatabasePath == "" {
		cfg.Store.DatabasePath = ".openclaw/data/rag/kioku.db"
	}
	if cfg.Store.CollectionName == "" {
		cfg.Store.CollectionName = "openclaw_knowledge"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = ".openclaw/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 2000
	}
	if cfg.StatePath == "" {
		cfg.StatePath = ".openclaw/data/rag/index-state.json"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
}
