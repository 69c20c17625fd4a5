package extract

import "strings"

// rule maps a keyword to an event type within a category. Rules are checked
// in declaration order; the first keyword found in the text wins.
type rule struct {
	keyword   string
	eventType string
}

// Category names, most specific first. DHCP outranks wifi because DHCP
// lease lines from wireless clients often mention the interface too.
const (
	CategoryDHCP     = "dhcp"
	CategoryWifi     = "wifi"
	CategoryFirewall = "firewall"
	CategoryAuth     = "auth"
	CategoryDNS      = "dns"
	CategorySystem   = "system"
)

var categories = []struct {
	name  string
	rules []rule
}{
	{CategoryDHCP, []rule{
		{"dhcpack", "dhcp_lease"},
		{"dhcprelease", "dhcp_release"},
		{"dhcpdiscover", "dhcp_discover"},
		{"dhcprequest", "dhcp_request"},
		{"dhcpoffer", "dhcp_offer"},
		{"dhcpdecline", "dhcp_decline"},
		{"dhcpexpire", "dhcp_expire"},
		{"lease expire", "dhcp_expire"},
		{"dhcp", "dhcp_lease"},
	}},
	{CategoryWifi, []rule{
		{"deauth", "wifi_deauth"},
		{"disassoc", "wifi_disassoc"},
		{"reassoc", "wifi_roam"},
		{"assoc", "wifi_assoc"},
		{"roam", "wifi_roam"},
		{"rssi", "wifi_rssi"},
		{"wlceventd", "wifi_event"},
		{"hostapd", "wifi_event"},
	}},
	{CategoryFirewall, []rule{
		{"iptables", "fw_filter"},
		{"netfilter", "fw_filter"},
		{"drop", "fw_drop"},
		{"reject", "fw_reject"},
		{"blocked", "fw_block"},
		{"firewall", "fw_filter"},
	}},
	{CategoryAuth, []rule{
		{"failed password", "auth_failure"},
		{"authentication failure", "auth_failure"},
		{"invalid user", "auth_failure"},
		{"accepted password", "auth_success"},
		{"accepted publickey", "auth_success"},
		{"session opened", "auth_session"},
		{"sudo", "auth_sudo"},
		{"login", "auth_login"},
	}},
	{CategoryDNS, []rule{
		{"nxdomain", "dns_nxdomain"},
		{"dnsmasq", "dns_query"},
		{"named", "dns_query"},
		{"query", "dns_query"},
	}},
}

// Classify assigns a (category, event type) to an event from keyword rules
// over the app name and message. Falls back to ("system", "system_event").
func Classify(appName, message string) (category, eventType string) {
	text := strings.ToLower(appName + " " + message)
	for _, c := range categories {
		for _, r := range c.rules {
			if strings.Contains(text, r.keyword) {
				return c.name, r.eventType
			}
		}
	}
	return CategorySystem, "system_event"
}
