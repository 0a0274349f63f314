package config

import (
	"errors"
	"time"

	"github.com/pion/webrtc/v4"
)

var (
	ErrInvalidBufferConfig        = errors.New("buffered amount low threshold must be less than max buffered amount")
	ErrInvalidPacketSize          = errors.New("packet size must be greater than 0")
	ErrInvalidResumeWindow        = errors.New("resume display window must be greater than 0")
	ErrInvalidFirebaseConfig      = errors.New("Firebase credentials path must be set")
	ErrInvalidFirebaseProjectID   = errors.New("Firebase project ID must be set")
	ErrInvalidFirebaseDatabaseURL = errors.New("Firebase database URL must be set")
)

// Config holds all application configuration.
type Config struct {
	WebRTC    WebRTCConfig    `mapstructure:"webrtc"`
	Firebase  FirebaseConfig  `mapstructure:"firebase"`
	Session   SessionConfig   `mapstructure:"session"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
}

// WebRTCConfig holds transport configuration for the engine's data channel.
type WebRTCConfig struct {
	ICEServers                 []webrtc.ICEServer `mapstructure:"ice_servers"`
	BufferedAmountLowThreshold uint64             `mapstructure:"buffered_amount_low_threshold"`
	MaxBufferedAmount          uint64             `mapstructure:"max_buffered_amount"`
	PacketSize                 int                `mapstructure:"packet_size"`
}

// FirebaseConfig holds the signalling backend configuration.
type FirebaseConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	DatabaseURL     string `mapstructure:"database_url"`
	CredentialsPath string `mapstructure:"credentials_path"`
}

// SessionConfig tunes the orchestration layer.
type SessionConfig struct {
	// ResumeDisplayWindow is how long the resume indicator stays visible.
	ResumeDisplayWindow time.Duration `mapstructure:"resume_display_window"`
}

// AnalyticsConfig configures the completion observation side-channel. An
// empty endpoint disables reporting entirely.
type AnalyticsConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// NewDefaultConfig returns a configuration with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		WebRTC: WebRTCConfig{
			ICEServers: []webrtc.ICEServer{
				{
					URLs: []string{"stun:stun.l.google.com:19302"},
				},
			},
			BufferedAmountLowThreshold: 512 * 1024,  // 512 KB
			MaxBufferedAmount:          1024 * 1024, // 1 MB
			PacketSize:                 16 * 1024,   // 16 KB packets
		},
		Firebase: FirebaseConfig{
			ProjectID:       "",
			DatabaseURL:     "",
			CredentialsPath: "",
		},
		Session: SessionConfig{
			ResumeDisplayWindow: 5 * time.Second,
		},
		Analytics: AnalyticsConfig{
			Endpoint: "",
		},
	}
}

// Validate ensures the configuration is valid.
func (c *Config) Validate() error {
	if c.WebRTC.BufferedAmountLowThreshold >= c.WebRTC.MaxBufferedAmount {
		return ErrInvalidBufferConfig
	}
	if c.WebRTC.PacketSize <= 0 {
		return ErrInvalidPacketSize
	}
	if c.Session.ResumeDisplayWindow <= 0 {
		return ErrInvalidResumeWindow
	}
	if c.Firebase.CredentialsPath == "" {
		return ErrInvalidFirebaseConfig
	}
	if c.Firebase.ProjectID == "" {
		return ErrInvalidFirebaseProjectID
	}
	if c.Firebase.DatabaseURL == "" {
		return ErrInvalidFirebaseDatabaseURL
	}
	return nil
}
