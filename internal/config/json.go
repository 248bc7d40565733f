package config

import (
	"encoding/json"
	"os"

	"github.com/trehub/airlock/internal/flagx"
)

// JsonConfig is the DTO used only for reading JSON configuration files;
// after unmarshalling its fields are copied into the runtime Config.
type JsonConfig struct {
	DatabaseDSN    string `json:"database_dsn"`
	IdentitySecret string `json:"identity_secret"`
	MinApprovals   int    `json:"min_approvals"`
	WorkspaceRoot  string `json:"workspace_root"`
	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
}

// parseJson overlays configuration values from the JSON file named by the
// -c or -config flags. Without the flag no file is loaded. An unreadable or
// invalid file panics; a silently half-applied config is worse than a crash
// at startup.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.IdentitySecret = c.IdentitySecret
	config.MinApprovals = c.MinApprovals
	config.WorkspaceRoot = c.WorkspaceRoot
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
