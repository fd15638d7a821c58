package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8091
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kasane/data/db/photos.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/kasane/data/indices/bleve"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kasane/data/models/mobilenetv3-embed.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 576
	}
	if cfg.Embedding.MaxImageDim == 0 {
		cfg.Embedding.MaxImageDim = 512
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 2000
	}
	if cfg.Scan.MaxRetries == 0 {
		cfg.Scan.MaxRetries = 3
	}
	if cfg.Scan.YieldEvery == 0 {
		cfg.Scan.YieldEvery = 10
	}
	if cfg.Similarity.DefaultThreshold == 0 {
		cfg.Similarity.DefaultThreshold = 0.8
	}
	if cfg.Similarity.DuplicateThreshold == 0 {
		cfg.Similarity.DuplicateThreshold = 0.95
	}
	if cfg.Similarity.DefaultLimit == 0 {
		cfg.Similarity.DefaultLimit = 20
	}
	if cfg.Similarity.MaxLimit == 0 {
		cfg.Similarity.MaxLimit = 200
	}
	if cfg.Stacking.Threshold == 0 {
		cfg.Stacking.Threshold = 0.95
	}
	if cfg.Stacking.Lookahead == 0 {
		cfg.Stacking.Lookahead = 5
	}
	if cfg.Stacking.MaxItems == 0 {
		cfg.Stacking.MaxItems = 100
	}
	if cfg.Library.Extensions == nil {
		// Only formats a registered decoder can handle. HEIC stays out
		// until a decoder is wired in; listing it would burn each HEIC
		// photo's retries on guaranteed decode failures.
		cfg.Library.Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Library.Roots) > 0 && cfg.Library.Recursive == nil {
		t := true
		cfg.Library.Recursive = &t
	}
}
