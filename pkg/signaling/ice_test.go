package signaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadICEFromEnvDefaults(t *testing.T) {
	t.Setenv("ICE_MODE", "")
	t.Setenv("STUN_URLS", "")
	t.Setenv("TURN_URLS", "")

	mode, servers := LoadICEFromEnv()
	assert.Equal(t, "stun-turn", mode)
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, servers[0].URLs)
}

func TestLoadICEFromEnvTurnOnly(t *testing.T) {
	t.Setenv("ICE_MODE", "turn-only")
	t.Setenv("STUN_URLS", "stun:ignored.example.com:3478")
	t.Setenv("TURN_URLS", "turn:turn.example.com:3478, turns:turn.example.com:5349")
	t.Setenv("TURN_USERNAME", "user")
	t.Setenv("TURN_PASSWORD", "pass")

	mode, servers := LoadICEFromEnv()
	assert.Equal(t, "turn-only", mode)
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"turn:turn.example.com:3478", "turns:turn.example.com:5349"}, servers[0].URLs)
	assert.Equal(t, "user", servers[0].Username)
	assert.Equal(t, "pass", servers[0].Credential)
}

func TestLoadICEFromEnvStunOnly(t *testing.T) {
	t.Setenv("ICE_MODE", "stun-only")
	t.Setenv("STUN_URLS", "stun:a.example.com:3478,stun:b.example.com:3478")
	t.Setenv("TURN_URLS", "turn:turn.example.com:3478")

	mode, servers := LoadICEFromEnv()
	assert.Equal(t, "stun-only", mode)
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"stun:a.example.com:3478", "stun:b.example.com:3478"}, servers[0].URLs)
}
