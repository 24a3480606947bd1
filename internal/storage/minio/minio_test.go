package minio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicBase(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "plain endpoint",
			cfg:  Config{Endpoint: "localhost:9000", Bucket: "trip-images"},
			want: "http://localhost:9000/trip-images",
		},
		{
			name: "tls endpoint",
			cfg:  Config{Endpoint: "s3.example.com", Bucket: "trip-images", UseSSL: true},
			want: "https://s3.example.com/trip-images",
		},
		{
			name: "explicit public url wins",
			cfg:  Config{Endpoint: "minio:9000", Bucket: "b", PublicURL: "https://cdn.example.com/img/"},
			want: "https://cdn.example.com/img",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, publicBase(tt.cfg))
		})
	}
}
