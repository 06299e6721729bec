package models

import "fmt"

// DefaultPort is the PostgreSQL port used when a profile leaves it unset.
const DefaultPort = 5432

// ConnectionParams holds everything needed to open a database session.
type ConnectionParams struct {
	Host     string `json:"host" yaml:"host" validate:"required"`
	Port     int    `json:"port" yaml:"port" validate:"min=1,max=65535"`
	Database string `json:"database" yaml:"database" validate:"required"`
	Username string `json:"username" yaml:"username" validate:"required"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	SSL      bool   `json:"ssl,omitempty" yaml:"ssl,omitempty"`

	// PasswordCommand is run at connect time and its trimmed stdout used as
	// the password. Profiles that set it never persist Password.
	PasswordCommand string `json:"password_command,omitempty" yaml:"password_command,omitempty"`
}

// Address returns host:port.
func (p ConnectionParams) Address() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// String describes the target without credentials (user@host:port/db).
func (p ConnectionParams) String() string {
	return fmt.Sprintf("%s@%s:%d/%s", p.Username, p.Host, p.Port, p.Database)
}

// ConnectionInput is a profile as entered by the user, before an id is assigned.
type ConnectionInput struct {
	Name             string `json:"name" yaml:"name" validate:"required"`
	ConnectionParams `yaml:",inline"`
}

// ApplyDefaults fills host and port with the connection form defaults.
func (in *ConnectionInput) ApplyDefaults() {
	if in.Host == "" {
		in.Host = "localhost"
	}
	if in.Port == 0 {
		in.Port = DefaultPort
	}
}

// ConnectionProfile is a saved, validated connection.
type ConnectionProfile struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	ConnectionParams `yaml:",inline"`
}

// Params returns the session parameters of the profile.
func (p ConnectionProfile) Params() ConnectionParams {
	return p.ConnectionParams
}

// Summary returns the profile without its password.
func (p ConnectionProfile) Summary() ConnectionSummary {
	return ConnectionSummary{
		ID:              p.ID,
		Name:            p.Name,
		Host:            p.Host,
		Port:            p.Port,
		Database:        p.Database,
		Username:        p.Username,
		SSL:             p.SSL,
		HasPassword:     p.Password != "" || p.PasswordCommand != "",
		PasswordCommand: p.PasswordCommand != "",
	}
}

// ConnectionSummary is the credential-free view of a profile handed to clients.
type ConnectionSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Database        string `json:"database"`
	Username        string `json:"username"`
	SSL             bool   `json:"ssl"`
	HasPassword     bool   `json:"has_password"`
	PasswordCommand bool   `json:"password_command"`
}

// Tooltip mirrors the label shown next to a connection in the tree.
func (s ConnectionSummary) Tooltip() string {
	return fmt.Sprintf("%s@%s:%d/%s", s.Username, s.Host, s.Port, s.Database)
}
