package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/dockstack/internal/model"
)

// TestParsePortMapping covers the supported short syntax forms and the
// malformed inputs that must be rejected before any daemon call.
func TestParsePortMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected Port
		hasError bool
	}{
		{"80", Port{ContainerPort: 80}, false},
		{"8080:80", Port{ContainerPort: 80, HostPort: 8080}, false},
		{"127.0.0.1:8080:80", Port{ContainerPort: 80, HostPort: 8080, HostIP: "127.0.0.1"}, false},
		{"53:53/udp", Port{ContainerPort: 53, HostPort: 53, Protocol: "udp"}, false},
		{"9000/TCP", Port{ContainerPort: 9000, Protocol: "tcp"}, false},
		{"127.0.0.1::80", Port{ContainerPort: 80, HostIP: "127.0.0.1"}, false},
		{"", Port{}, true},
		{"http", Port{}, true},
		{"8080:", Port{}, true},
		{":80", Port{}, true},
		{"70000:80", Port{}, true},
		{"0", Port{}, true},
		{"80/icmp", Port{}, true},
		{"1:2:3:4", Port{}, true},
		{"3000-3005:3000-3005", Port{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := ParsePortMapping(tt.input)
			if tt.hasError {
				require.Error(t, err)
				assert.True(t, model.IsKind(err, model.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p)
		})
	}
}

// TestPort_String verifies rendering back to the short syntax.
func TestPort_String(t *testing.T) {
	assert.Equal(t, "80", Port{ContainerPort: 80}.String())
	assert.Equal(t, "8080:80", Port{ContainerPort: 80, HostPort: 8080}.String())
	assert.Equal(t, "8080:80/tcp", Port{ContainerPort: 80, HostPort: 8080, Protocol: "tcp"}.String())
	assert.Equal(t, "127.0.0.1::80", Port{ContainerPort: 80, HostIP: "127.0.0.1"}.String())
	assert.Equal(t, "127.0.0.1:53:53/udp", Port{ContainerPort: 53, HostPort: 53, HostIP: "127.0.0.1", Protocol: "udp"}.String())
}

// TestParseVolumeMapping covers anonymous, named and bind volumes.
func TestParseVolumeMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected Volume
		hasError bool
	}{
		{"/data", Volume{Target: "/data", Kind: VolumeNamed}, false},
		{"dbdata:/var/lib/db", Volume{Source: "dbdata", Target: "/var/lib/db", Kind: VolumeNamed}, false},
		{"./src:/app:ro", Volume{Source: "./src", Target: "/app", Kind: VolumeBind, ReadOnly: true}, false},
		{"/host:/ctr:rw", Volume{Source: "/host", Target: "/ctr", Kind: VolumeBind}, false},
		{"~/cfg:/cfg", Volume{Source: "~/cfg", Target: "/cfg", Kind: VolumeBind}, false},
		{"", Volume{}, true},
		{"data:relative", Volume{}, true},
		{":/data", Volume{}, true},
		{"a:/b:rx", Volume{}, true},
		{"a:/b:ro:extra", Volume{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := ParseVolumeMapping(tt.input)
			if tt.hasError {
				require.Error(t, err)
				assert.True(t, model.IsKind(err, model.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

// TestVolume_String verifies the short syntax round trip.
func TestVolume_String(t *testing.T) {
	for _, s := range []string{"/data", "dbdata:/var/lib/db", "./src:/app:ro"} {
		v, err := ParseVolumeMapping(s)
		require.NoError(t, err)
		assert.Equal(t, s, v.String())
	}
}

// TestParseRestartPolicy verifies the closed set of restart policies.
func TestParseRestartPolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected RestartPolicy
		hasError bool
	}{
		{"no", RestartPolicy{Name: RestartNo}, false},
		{"always", RestartPolicy{Name: RestartAlways}, false},
		{"unless-stopped", RestartPolicy{Name: RestartUnlessStopped}, false},
		{"on-failure", RestartPolicy{Name: RestartOnFailure}, false},
		{"on-failure:5", RestartPolicy{Name: RestartOnFailure, MaxRetries: 5}, false},
		{"Always", RestartPolicy{Name: RestartAlways}, false}, // case insensitive
		{"sometimes", RestartPolicy{}, true},
		{"always:3", RestartPolicy{}, true},
		{"on-failure:x", RestartPolicy{}, true},
		{"on-failure:-1", RestartPolicy{}, true},
		{"", RestartPolicy{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := ParseRestartPolicy(tt.input)
			if tt.hasError {
				require.Error(t, err)
				assert.True(t, model.IsKind(err, model.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p)
		})
	}
}

// TestRestartPolicy_String verifies the compose rendering.
func TestRestartPolicy_String(t *testing.T) {
	assert.Equal(t, "on-failure:3", RestartPolicy{Name: RestartOnFailure, MaxRetries: 3}.String())
	assert.Equal(t, "on-failure", RestartPolicy{Name: RestartOnFailure}.String())
	assert.Equal(t, "always", RestartPolicy{Name: RestartAlways, MaxRetries: 3}.String())
}

// TestBuildSpec_IsContextOnly checks when a build can be written as a string.
func TestBuildSpec_IsContextOnly(t *testing.T) {
	assert.True(t, (&BuildSpec{Context: "."}).IsContextOnly())
	assert.False(t, (&BuildSpec{Context: ".", Target: "prod"}).IsContextOnly())
	assert.False(t, (&BuildSpec{Context: ".", Args: map[string]string{"A": "1"}}).IsContextOnly())
}
