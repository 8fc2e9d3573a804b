package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/glimte/gdp-bridge/contracts"
)

func TestRouteConfig(t *testing.T) {
	t.Run("constructors set direction and topics", func(t *testing.T) {
		r2l := RemoteToLocal("chatter", "chatter_local", stringType)
		assert.Equal(t, contracts.RemoteToLocal, r2l.Direction)
		assert.Equal(t, contracts.NewTopic("chatter", stringType), r2l.RemoteTopic())
		assert.Equal(t, contracts.NewTopic("chatter_local", stringType), r2l.LocalTopic())
		assert.Equal(t, "remote_to_local/chatter->chatter_local", r2l.Name())
		assert.Equal(t, "chatter", r2l.sourceTopic())

		l2r := LocalToRemote("cmd", "robot/cmd", stringType)
		assert.Equal(t, contracts.LocalToRemote, l2r.Direction)
		assert.Equal(t, "local_to_remote/cmd->robot/cmd", l2r.Name())
		assert.Equal(t, "cmd", l2r.sourceTopic())
	})

	t.Run("Validate", func(t *testing.T) {
		tests := []struct {
			name    string
			config  RouteConfig
			wantErr bool
		}{
			{"valid", RemoteToLocal("a", "b", stringType), false},
			{"missing local", RemoteToLocal("a", "", stringType), true},
			{"missing remote", LocalToRemote("a", "", stringType), true},
			{"missing type", LocalToRemote("a", "b", ""), true},
			{"bad direction", RouteConfig{Direction: 7, Local: "a", Remote: "b", Type: stringType}, true},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.config.Validate()
				if tt.wantErr {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
			})
		}
	})
}
