package discovery

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Instance: "alice-laptop",
		Host:     "alice-laptop.local",
		IPs:      []net.IP{net.IPv4(192, 168, 1, 20)},
	}
}

func TestNewZoneAnswersServiceQueries(t *testing.T) {
	zone, err := NewZone(testConfig(), 8080)
	require.NoError(t, err)
	require.Equal(t, DefaultService, zone.Service)
	require.Equal(t, "alice-laptop.local.", zone.HostName)

	records := zone.Records(dns.Question{Name: "_codeshare._tcp.local.", Qtype: dns.TypePTR, Qclass: dns.ClassINET})
	require.NotEmpty(t, records)
	ptr, ok := records[0].(*dns.PTR)
	require.True(t, ok)
	require.Equal(t, "alice-laptop._codeshare._tcp.local.", ptr.Ptr)

	srv := zone.Records(dns.Question{Name: ptr.Ptr, Qtype: dns.TypeSRV, Qclass: dns.ClassINET})
	require.NotEmpty(t, srv)
	require.EqualValues(t, 8080, srv[0].(*dns.SRV).Port)

	txt := zone.Records(dns.Question{Name: ptr.Ptr, Qtype: dns.TypeTXT, Qclass: dns.ClassINET})
	require.NotEmpty(t, txt)
	require.Equal(t, []string{"codeshare", "framing=ndjson"}, txt[0].(*dns.TXT).Txt)
}

func TestNewZoneCustomService(t *testing.T) {
	cfg := testConfig()
	cfg.Service = "_pair._tcp"
	cfg.TXT = []string{"project=demo"}

	zone, err := NewZone(cfg, 9000)
	require.NoError(t, err)
	require.Equal(t, "_pair._tcp", zone.Service)
	require.Equal(t, []string{"project=demo"}, zone.TXT)
}

func TestNewZoneRejectsInvalidPort(t *testing.T) {
	_, err := NewZone(testConfig(), 0)
	require.Error(t, err)
}

func TestPortOf(t *testing.T) {
	port, err := portOf(&net.TCPAddr{IP: net.IPv4zero, Port: 4242})
	require.NoError(t, err)
	require.Equal(t, 4242, port)

	_, err = portOf(nil)
	require.Error(t, err)
}

func TestNilAdvertiserShutdown(t *testing.T) {
	var a *Advertiser
	require.NoError(t, a.Shutdown())
	require.Nil(t, a.Zone())
}
