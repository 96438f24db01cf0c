package network

import (
	"context"
	"fmt"
	"io"

	"github.com/lure-project/lure/internal/ping"
	"github.com/lure-project/lure/internal/protocol"
)

// readLegacyPing parses FE 01 FA, the plugin channel, and the host/port
// tail sent by 1.6 clients.
func readLegacyPing(r io.Reader) (ping.LegacyPing, error) {
	var lp ping.LegacyPing

	for i := 0; i < 3; i++ {
		if _, err := protocol.ReadByte(r); err != nil {
			return lp, fmt.Errorf("legacy header: %w", err)
		}
	}

	channelLen, err := protocol.ReadUint16(r)
	if err != nil {
		return lp, fmt.Errorf("legacy channel length: %w", err)
	}
	if _, err := protocol.ReadUTF16BE(r, int(channelLen)); err != nil {
		return lp, fmt.Errorf("legacy channel: %w", err)
	}
	if _, err := protocol.ReadUint16(r); err != nil {
		return lp, fmt.Errorf("legacy payload length: %w", err)
	}

	version, err := protocol.ReadByte(r)
	if err != nil {
		return lp, fmt.Errorf("legacy protocol version: %w", err)
	}
	hostLen, err := protocol.ReadUint16(r)
	if err != nil {
		return lp, fmt.Errorf("legacy hostname length: %w", err)
	}
	host, err := protocol.ReadUTF16BE(r, int(hostLen))
	if err != nil {
		return lp, fmt.Errorf("legacy hostname: %w", err)
	}
	port, err := protocol.ReadInt32(r)
	if err != nil {
		return lp, fmt.Errorf("legacy port: %w", err)
	}

	lp.ProtocolVersion = int32(version)
	lp.ServerAddress = host
	lp.ServerPort = uint16(port)
	return lp, nil
}

// handleLegacy answers a 0xFE ping. Whatever the client sent, it gets a
// kick packet carrying the status fields.
func (l *TCPListener) handleLegacy(ctx context.Context, conn *Connection) error {
	lp, err := readLegacyPing(conn)
	if err != nil {
		conn.Logger().Debug().Err(err).Msg("malformed legacy ping, answering anyway")
		lp = ping.LegacyPing{}
	}

	req := ping.NewRequest(conn.RemoteAddr(), lp)
	resp := l.responder.Respond(req)

	data, err := protocol.BuildLegacyResponse(protocol.LegacyReply{
		ProtocolVersion: resp.Version.Protocol,
		VersionName:     resp.Version.Name,
		Description:     resp.Description.Text,
		OnlinePlayers:   resp.Players.Online,
		MaxPlayers:      resp.Players.Max,
	})
	if err != nil {
		return err
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("legacy response: %w", err)
	}

	l.emit(ctx, conn, req)
	return nil
}
