// Package tor provides proxy connectivity for remote link probes.
//
// References to .onion hosts can only be reached through Tor. This package
// supplies a SOCKS5 Client that builds probe HTTP clients, an EmbeddedTor
// that runs a private Tor daemon via tornago, and helpers that validate onion
// host names (including the v3 checksum) before any network I/O.
//
// # Usage
//
//	client, err := tor.NewClient("127.0.0.1:9050", 10*time.Second)
//	if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
//	    return status.Err()
//	}
//	httpClient := client.NewHTTPClient()
package tor
