// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/syntheticmagus/manifold-meeting-space/lib/config"
)

// ICEConfig holds the STUN/TURN servers for new PeerConnections.
type ICEConfig struct {
	// Servers are tried in order during candidate gathering. Empty
	// means host candidates only, which suffices on one machine or LAN.
	Servers []webrtc.ICEServer
}

// ICEConfigFromSettings converts the ice.servers configuration section.
func ICEConfigFromSettings(servers []config.ICEServer) ICEConfig {
	var result ICEConfig
	for _, server := range servers {
		if len(server.URLs) == 0 {
			continue
		}
		entry := webrtc.ICEServer{URLs: server.URLs, Username: server.Username}
		if server.Credential != "" {
			entry.Credential = server.Credential
		}
		result.Servers = append(result.Servers, entry)
	}
	return result
}
