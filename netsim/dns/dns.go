// SPDX-License-Identifier: GPL-3.0-or-later

// Package dns implements the name service answered by simulated routers.
//
// The [*Database] maps router names to their interface addresses and
// interface addresses back to router names, so that tools such as
// traceroute print meaningful hop names.
package dns

import (
	"net"
	"net/netip"

	"github.com/miekg/dns"
	"github.com/rbmk-project/common/runtimex"
)

// DefaultTTL is the TTL of the records in the database.
const DefaultTTL = 3600

// Database models the chain DNS database.
type Database struct {
	names map[string][]dns.RR
}

// NewDatabase creates a new DNS database.
func NewDatabase() *Database {
	return &Database{
		names: make(map[string][]dns.RR),
	}
}

// Len returns the number of names in the database.
func (dd *Database) Len() int {
	return len(dd.names)
}

// AddCNAME adds a CNAME alias.
//
// This method IS NOT goroutine safe.
func (dd *Database) AddCNAME(name, alias string) {
	name = dns.CanonicalName(name)
	rr := &dns.CNAME{
		Hdr:    newHeader(name, dns.TypeCNAME),
		Target: dns.CanonicalName(alias),
	}
	dd.names[name] = append(dd.names[name], rr)
}

// AddAddresses adds A/AAAA records mapping the given
// domainNames to the given IPv4/IPv6 addresses.
//
// This method IS NOT goroutine safe.
func (dd *Database) AddAddresses(domainNames []string, addresses []netip.Addr) {
	for _, name := range domainNames {
		name = dns.CanonicalName(name)
		for _, addr := range addresses {
			runtimex.Assert(addr.IsValid(), "invalid IP address")
			ipAddr := net.IP(addr.AsSlice())

			var rr dns.RR
			switch {
			case addr.Is4():
				rr = &dns.A{Hdr: newHeader(name, dns.TypeA), A: ipAddr}
			default:
				rr = &dns.AAAA{Hdr: newHeader(name, dns.TypeAAAA), AAAA: ipAddr}
			}

			dd.names[name] = append(dd.names[name], rr)
		}
	}
}

// AddPTR adds a PTR record mapping the given address to the given name.
//
// This method IS NOT goroutine safe.
func (dd *Database) AddPTR(addr netip.Addr, name string) {
	reverse := runtimex.Try1(dns.ReverseAddr(addr.String()))
	rr := &dns.PTR{
		Hdr: newHeader(reverse, dns.TypePTR),
		Ptr: dns.CanonicalName(name),
	}
	dd.names[reverse] = append(dd.names[reverse], rr)
}

// AddHost adds both the forward and the reverse records for a host.
//
// This method IS NOT goroutine safe.
func (dd *Database) AddHost(name string, addresses ...netip.Addr) {
	dd.AddAddresses([]string{name}, addresses)
	for _, addr := range addresses {
		dd.AddPTR(addr, name)
	}
}

// newHeader creates the common DNS header.
func newHeader(name string, rrtype uint16) dns.RR_Header {
	return dns.RR_Header{
		Name:     name,
		Rrtype:   rrtype,
		Class:    dns.ClassINET,
		Ttl:      DefaultTTL,
		Rdlength: 0,
	}
}

// Handle answers a raw DNS query and returns the raw response. It
// returns false when the query should be ignored.
//
// This method is goroutine safe as long as one does not
// modify the database while handling queries.
func (dd *Database) Handle(rawQuery []byte) ([]byte, bool) {
	// Parse the incoming query and make sure it's a
	// query containing just one question.
	var (
		response = &dns.Msg{}
		query    = &dns.Msg{}
	)
	if err := query.Unpack(rawQuery); err != nil {
		return nil, false
	}
	if query.Response || query.Opcode != dns.OpcodeQuery || len(query.Question) != 1 {
		return nil, false
	}
	response.SetReply(query)
	response.Authoritative = true

	// Get the RRs if possible
	var (
		q0   = query.Question[0]
		name = dns.CanonicalName(q0.Name)
	)
	switch {
	case q0.Qclass != dns.ClassINET:
		response.Rcode = dns.RcodeRefused
	case q0.Qtype == dns.TypeA ||
		q0.Qtype == dns.TypeAAAA ||
		q0.Qtype == dns.TypeCNAME ||
		q0.Qtype == dns.TypePTR:
		var found bool
		response.Answer, found = dd.lookup(q0.Qtype, name)
		if !found {
			response.Rcode = dns.RcodeNameError
		}
	default:
		response.Rcode = dns.RcodeNameError
	}

	// Serialize the response
	rawResp, err := response.Pack()
	if err != nil {
		return nil, false
	}
	return rawResp, true
}

// lookup returns the DNS records for a domain name.
//
// This method is goroutine safe as long as one does not
// modify the database while handling queries.
func (dd *Database) lookup(qtype uint16, name string) ([]dns.RR, bool) {
	const maxloops = 10
	var rrs []dns.RR
	for idx := 0; idx < maxloops; idx++ {

		// Search whether the current name is in the database.
		interim, found := dd.names[name]
		if !found {
			return nil, false
		}

		// We have definitely found something related.
		var matching []dns.RR
		for _, rr := range interim {
			if qtype == rr.Header().Rrtype {
				matching = append(matching, rr)
			}
		}
		if len(matching) > 0 {
			return append(rrs, matching...), true
		}

		// Otherwise, follow CNAME redirects.
		var cname *dns.CNAME
		for _, rr := range interim {
			if rr, ok := rr.(*dns.CNAME); ok {
				cname = rr
				break
			}
		}
		if cname == nil {
			return nil, false
		}

		// Continue searching from the CNAME target.
		rrs = append(rrs, cname)
		name = cname.Target
	}

	return nil, false
}
