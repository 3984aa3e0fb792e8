package pceapi

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"net"
	"net/http"
	"strings"
)

// websocketGUID is the fixed RFC 6455 handshake magic string.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// wsConn is a minimal RFC 6455 server-to-client text-frame writer, raw
// stdlib only (no gorilla/websocket in go.mod — see the operational log's
// DESIGN.md note on WS framing). It only needs to push transcript items;
// it never reads incoming client frames.
type wsConn struct {
	rw bufio.ReadWriter
	c  net.Conn
}

// upgradeWebSocket performs the RFC 6455 handshake on r and hijacks the
// underlying connection for subsequent raw frame writes.
func upgradeWebSocket(w http.ResponseWriter, r *http.Request) (*wsConn, error) {
	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" || !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return nil, errors.New("pceapi: not a websocket upgrade request")
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		return nil, errors.New("pceapi: response writer does not support hijacking")
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		return nil, err
	}

	sum := sha1.Sum([]byte(key + websocketGUID))
	accept := base64.StdEncoding.EncodeToString(sum[:])

	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := rw.WriteString(resp); err != nil {
		conn.Close()
		return nil, err
	}
	if err := rw.Flush(); err != nil {
		conn.Close()
		return nil, err
	}
	return &wsConn{rw: *rw, c: conn}, nil
}

func (ws *wsConn) Close() error { return ws.c.Close() }

// WriteText sends one unmasked text frame (server frames are never masked
// per RFC 6455 5.1).
func (ws *wsConn) WriteText(payload []byte) error {
	if err := ws.writeHeader(0x1, len(payload)); err != nil {
		return err
	}
	if _, err := ws.rw.Write(payload); err != nil {
		return err
	}
	return ws.rw.Flush()
}

// WritePing sends a ping frame, used as a keepalive heartbeat.
func (ws *wsConn) WritePing() error {
	if err := ws.writeHeader(0x9, 0); err != nil {
		return err
	}
	return ws.rw.Flush()
}

func (ws *wsConn) writeHeader(opcode byte, length int) error {
	first := byte(0x80) | opcode // FIN=1
	if err := ws.rw.WriteByte(first); err != nil {
		return err
	}
	switch {
	case length <= 125:
		return ws.rw.WriteByte(byte(length))
	case length <= 0xFFFF:
		if err := ws.rw.WriteByte(126); err != nil {
			return err
		}
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], uint16(length))
		_, err := ws.rw.Write(buf[:])
		return err
	default:
		if err := ws.rw.WriteByte(127); err != nil {
			return err
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(length))
		_, err := ws.rw.Write(buf[:])
		return err
	}
}
