// Package discover probes address ranges for reachable SSH hosts, for
// fleets that have no directory service entry yet (pre-bootstrap).
package discover

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agent462/drover/internal/config"
	"github.com/agent462/drover/internal/node"
)

// Host is a discovered address with a verified-open SSH port.
type Host struct {
	Address string
	Port    int
}

// Target converts a discovered host into a run target.
func (h Host) Target(opts config.Options) node.Target {
	o := opts
	o.Port = h.Port
	return node.StaticTarget(h.Address, o)
}

// CIDRScan probes every usable host address in the CIDR range for an
// open TCP port. Network and broadcast addresses are skipped for
// ranges larger than /31. Concurrency bounds the parallel dials.
func CIDRScan(ctx context.Context, cidr string, port, concurrency int, timeout time.Duration) ([]Host, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
	}
	if concurrency <= 0 {
		concurrency = config.DefaultConcurrency
	}

	ips := EnumerateHosts(network)
	if len(ips) == 0 {
		return nil, nil
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	found := make(chan Host, len(ips))

	for _, ip := range ips {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		go func(addr net.IP) {
			defer sem.Release(1)

			target := net.JoinHostPort(addr.String(), fmt.Sprintf("%d", port))
			d := net.Dialer{Timeout: timeout}
			conn, dialErr := d.DialContext(ctx, "tcp", target)
			if dialErr != nil {
				return
			}
			conn.Close()
			found <- Host{Address: addr.String(), Port: port}
		}(ip)
	}

	// Drain once all probes have released their slots.
	if err := sem.Acquire(context.Background(), int64(concurrency)); err != nil {
		return nil, err
	}
	close(found)

	var results []Host
	for h := range found {
		results = append(results, h)
	}

	sort.Slice(results, func(i, j int) bool {
		ipA := net.ParseIP(results[i].Address).To4()
		ipB := net.ParseIP(results[j].Address).To4()
		if ipA != nil && ipB != nil {
			return binary.BigEndian.Uint32(ipA) < binary.BigEndian.Uint32(ipB)
		}
		return results[i].Address < results[j].Address
	})

	return results, nil
}

// EnumerateHosts returns all usable host IPs in the network. IPv4 only;
// for /30 and larger the network and broadcast addresses are skipped,
// /31 keeps both ends (point-to-point, RFC 3021).
func EnumerateHosts(network *net.IPNet) []net.IP {
	ip := network.IP.To4()
	if ip == nil {
		return nil
	}

	ones, bits := network.Mask.Size()
	if bits != 32 {
		return nil
	}

	if ones == 32 {
		single := make(net.IP, 4)
		copy(single, ip)
		return []net.IP{single}
	}

	start := binary.BigEndian.Uint32(ip)
	size := uint32(1) << uint(bits-ones)

	var hosts []net.IP
	if ones == 31 {
		for i := uint32(0); i < size; i++ {
			addr := make(net.IP, 4)
			binary.BigEndian.PutUint32(addr, start+i)
			hosts = append(hosts, addr)
		}
		return hosts
	}

	for i := uint32(1); i < size-1; i++ {
		addr := make(net.IP, 4)
		binary.BigEndian.PutUint32(addr, start+i)
		hosts = append(hosts, addr)
	}
	return hosts
}
