package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/trading-ingest/internal/config"
)

func TestParseArgs(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, opts *options)
	}{
		{
			name: "bigquery flags",
			args: []string{"-backend", "bigquery", "-project", "p", "-dataset", "d", "-applied-by", "ci"},
			check: func(t *testing.T, opts *options) {
				assert.Equal(t, config.BackendBigQuery, opts.cfg.Backend)
				assert.Equal(t, "p", opts.cfg.BigQuery.ProjectID)
				assert.Equal(t, "d", opts.cfg.BigQuery.Dataset)
				assert.Equal(t, "ci", opts.appliedBy)
				assert.Equal(t, 10*time.Minute, opts.timeout)
			},
		},
		{
			name: "memory backend",
			args: []string{"-backend", "memory", "-timeout", "30s"},
			check: func(t *testing.T, opts *options) {
				assert.Equal(t, config.BackendMemory, opts.cfg.Backend)
				assert.Equal(t, 30*time.Second, opts.timeout)
			},
		},
		{name: "bigquery without project", args: []string{"-backend", "bigquery", "-project", ""}, wantErr: true},
		{name: "unknown backend", args: []string{"-backend", "sqlite"}, wantErr: true},
		{name: "unknown flag", args: []string{"-nope"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, opts)
		})
	}
}
