package config

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type" mapstructure:"type"`                         // Type of storage ("gcs" or "local").
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"` // Path to credentials file (service account key for GCS).
	BaseDir         string `yaml:"base_dir" mapstructure:"base_dir"`                 // Base directory for local file system operations.
}
