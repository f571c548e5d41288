package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUDPSendReceiveRoundTrip(t *testing.T) {
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer serverConn.Close()

	client, err := DialUDP(serverConn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send([]byte("hello")))

	buf := make([]byte, 64)
	require.NoError(t, serverConn.SetReadDeadline(time.Now().Add(time.Second)))
	n, clientAddr, err := serverConn.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))

	_, err = serverConn.WriteToUDP([]byte("world"), clientAddr)
	require.NoError(t, err)

	n, err = client.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "world", string(buf[:n]))
}

func TestUDPReadTimesOutWithoutError(t *testing.T) {
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer serverConn.Close()

	client, err := DialUDP(serverConn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	buf := make([]byte, 64)
	n, err := client.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
