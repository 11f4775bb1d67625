// Command list-interfaces enumerates the host's network interfaces and
// their indices, per spec.md §6's "list-interfaces" CLI contract.
package main

import (
	"fmt"
	"net"
	"os"
)

func main() {
	ifaces, err := net.Interfaces()
	if err != nil {
		fmt.Fprintf(os.Stderr, "listing interfaces: %v\n", err)
		os.Exit(1)
	}
	for _, iface := range ifaces {
		fmt.Printf("%d\t%s\n", iface.Index, iface.Name)
	}
}
