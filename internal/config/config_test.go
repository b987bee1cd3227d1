package config

import (
	"strings"
	"testing"
	"time"

	"github.com/ayusman/posecue/internal/pnn"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Pipeline.WindowSize != 15 {
		t.Errorf("WindowSize = %d, want 15", cfg.Pipeline.WindowSize)
	}
	if cfg.Pipeline.MinConfidence != 40 {
		t.Errorf("MinConfidence = %d, want 40", cfg.Pipeline.MinConfidence)
	}
	if cfg.Pipeline.Sigma != pnn.DefaultSigma {
		t.Errorf("Sigma = %g, want %g", cfg.Pipeline.Sigma, pnn.DefaultSigma)
	}
	if cfg.KernelValue() != pnn.Gaussian {
		t.Errorf("KernelValue() = %v, want gaussian", cfg.KernelValue())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v", err)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("POSECUE_WINDOW_SIZE", "10")
	t.Setenv("POSECUE_KERNEL", "5")
	t.Setenv("POSECUE_SIGMA", "0.05")
	t.Setenv("POSECUE_DETECT_TICK", "100ms")
	t.Setenv("POSECUE_POSE_SLOT", "mqtt")
	t.Setenv("POSECUE_RECORD_POSES", "false")
	t.Setenv("POSECUE_PORT", "not-a-number")

	cfg := Load()

	if cfg.Pipeline.WindowSize != 10 {
		t.Errorf("WindowSize = %d, want 10", cfg.Pipeline.WindowSize)
	}
	if cfg.KernelValue() != pnn.Laplace {
		t.Errorf("KernelValue() = %v, want laplace", cfg.KernelValue())
	}
	if cfg.Pipeline.Sigma != 0.05 {
		t.Errorf("Sigma = %g, want 0.05", cfg.Pipeline.Sigma)
	}
	if cfg.Pipeline.DetectTick != 100*time.Millisecond {
		t.Errorf("DetectTick = %v, want 100ms", cfg.Pipeline.DetectTick)
	}
	if cfg.Slots.PoseKind != "mqtt" {
		t.Errorf("PoseKind = %q, want mqtt", cfg.Slots.PoseKind)
	}
	if cfg.Pipeline.RecordPoses {
		t.Error("RecordPoses should be false")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("unparseable port should fall back to 8080, got %d", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"window", func(c *Config) { c.Pipeline.WindowSize = 0 }, "window size"},
		{"sigma", func(c *Config) { c.Pipeline.Sigma = 0 }, "sigma"},
		{"kernel", func(c *Config) { c.Pipeline.Kernel = "9" }, "kernel"},
		{"slot", func(c *Config) { c.Slots.ActionKind = "pipe" }, "action slot"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
