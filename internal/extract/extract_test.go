package extract

import (
	"testing"
	"time"

	"github.com/skovlund/netwatch/internal/model"
)

func syslogEvent(app, msg string) model.NormalizedEvent {
	return model.NormalizedEvent{
		ReceivedAt: time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC),
		SourceHost: "gw",
		AppName:    app,
		Message:    msg,
		RawMessage: msg,
		Source:     model.SourceSyslog,
	}
}

func TestObservations_NoMAC(t *testing.T) {
	obs := Observations(syslogEvent("kernel", "nothing interesting here"))
	if len(obs) != 0 {
		t.Fatalf("expected zero observations, got %d", len(obs))
	}
}

func TestObservations_TwoMACFormats(t *testing.T) {
	obs := Observations(syslogEvent("wlceventd",
		"assoc aa:bb:cc:dd:ee:ff and AA-BB-CC-DD-EE-00 joined"))

	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}
	if obs[0].MAC != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("expected normalized colon MAC, got %q", obs[0].MAC)
	}
	if obs[1].MAC != "AA:BB:CC:DD:EE:00" {
		t.Fatalf("expected normalized hyphen MAC, got %q", obs[1].MAC)
	}
	// One event, one classification, shared across observations.
	if obs[0].Category != obs[1].Category || obs[0].EventType != obs[1].EventType {
		t.Fatal("expected both observations to share one classification")
	}
}

func TestObservations_DuplicateMACCollapses(t *testing.T) {
	obs := Observations(syslogEvent("app",
		"saw aa:bb:cc:dd:ee:ff then again AA:BB:CC:DD:EE:FF"))
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation for a repeated MAC, got %d", len(obs))
	}
}

func TestObservations_RSSIAndIP(t *testing.T) {
	obs := Observations(syslogEvent("wlceventd",
		"assoc aa:bb:cc:dd:ee:ff ip 192.168.1.42 rssi -67"))

	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	if obs[0].RSSI == nil || *obs[0].RSSI != -67 {
		t.Fatalf("expected rssi -67, got %v", obs[0].RSSI)
	}
	if obs[0].IPAddress == nil || *obs[0].IPAddress != "192.168.1.42" {
		t.Fatalf("expected ip 192.168.1.42, got %v", obs[0].IPAddress)
	}
}

func TestObservations_OccurredAtPrefersEventTime(t *testing.T) {
	ev := syslogEvent("app", "x aa:bb:cc:dd:ee:ff")
	eventAt := time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)
	ev.EventAt = &eventAt

	obs := Observations(ev)
	if len(obs) != 1 || !obs[0].OccurredAt.Equal(eventAt) {
		t.Fatalf("expected occurred_at %v, got %+v", eventAt, obs)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		app, msg      string
		wantCategory  string
		wantEventType string
	}{
		{"dnsmasq-dhcp", "DHCPACK(br0) 10.0.0.7 aa:bb:cc:dd:ee:ff phone", "dhcp", "dhcp_lease"},
		{"dnsmasq-dhcp", "DHCPRELEASE(br0) 10.0.0.7", "dhcp", "dhcp_release"},
		{"dnsmasq-dhcp", "DHCPDISCOVER(br0)", "dhcp", "dhcp_discover"},
		{"dnsmasq-dhcp", "DHCPREQUEST(br0)", "dhcp", "dhcp_request"},
		{"dnsmasq-dhcp", "DHCPOFFER(br0)", "dhcp", "dhcp_offer"},
		{"dnsmasq-dhcp", "DHCPDECLINE(br0)", "dhcp", "dhcp_decline"},
		{"wlceventd", "wlceventd_proc_event(511): eth6: Deauth_ind AA:BB:CC:DD:EE:FF", "wifi", "wifi_deauth"},
		{"wlceventd", "Assoc AA:BB:CC:DD:EE:FF rssi -55", "wifi", "wifi_assoc"},
		{"hostapd", "station disassociated", "wifi", "wifi_disassoc"},
		{"kernel", "iptables denied packet", "firewall", "fw_filter"},
		{"kernel", "DROP IN=eth0 OUT=", "firewall", "fw_drop"},
		{"sshd", "Failed password for root", "auth", "auth_failure"},
		{"sshd", "Accepted publickey for admin", "auth", "auth_success"},
		{"dnsmasq", "query[A] example.com from 10.0.0.5", "dns", "dns_query"},
		{"named", "NXDOMAIN for bad.example", "dns", "dns_nxdomain"},
		{"cron", "job finished", "system", "system_event"},
	}

	for _, tt := range tests {
		cat, et := Classify(tt.app, tt.msg)
		if cat != tt.wantCategory || et != tt.wantEventType {
			t.Errorf("Classify(%q, %q) = (%s, %s), want (%s, %s)",
				tt.app, tt.msg, cat, et, tt.wantCategory, tt.wantEventType)
		}
	}
}

func TestClassify_DHCPOutranksWifi(t *testing.T) {
	// A DHCP line mentioning a wireless interface stays in dhcp.
	cat, _ := Classify("dnsmasq-dhcp", "DHCPACK wl0 assoc aa:bb:cc:dd:ee:ff")
	if cat != "dhcp" {
		t.Fatalf("expected dhcp to outrank wifi, got %q", cat)
	}
}

func TestNormalizeMAC(t *testing.T) {
	if got := NormalizeMAC("aa-bb-cc-dd-ee-ff"); got != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}

func TestObservations_BogusIPIgnored(t *testing.T) {
	obs := Observations(syslogEvent("app", "aa:bb:cc:dd:ee:ff at 999.1.1.1"))
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	if obs[0].IPAddress != nil {
		t.Fatalf("expected out-of-range IP to be ignored, got %v", *obs[0].IPAddress)
	}
}
