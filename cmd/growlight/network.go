package main

import (
	"net"
	"os"
	"strings"

	"github.com/sweeney/growlight/internal/status"
)

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// detectNetwork prefers pi-helper's view and falls back to the interfaces.
func detectNetwork() *status.NetworkInfo {
	if info := readNetworkInfo(); info != nil {
		return info
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return &status.NetworkInfo{Status: "unknown"}
	}
	return fromInterfaces(ifaces, func(i net.Interface) ([]net.Addr, error) { return i.Addrs() })
}

// fromInterfaces reports the first up, non-loopback interface with an IPv4
// address as connected.
func fromInterfaces(ifaces []net.Interface, addrs func(net.Interface) ([]net.Addr, error)) *status.NetworkInfo {
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		as, err := addrs(iface)
		if err != nil {
			continue
		}
		for _, a := range as {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			kind := "ethernet"
			if strings.HasPrefix(iface.Name, "wl") {
				kind = "wifi"
			}
			return &status.NetworkInfo{Type: kind, IP: ipnet.IP.String(), Status: "connected"}
		}
	}
	return &status.NetworkInfo{Status: "disconnected"}
}
