package node

// UnknownAddress is returned when no attribute yields a usable address.
// Resolution never errors; connecting to an unknown address fails fast
// with an unreachable classification instead.
const UnknownAddress = ""

// Known cloud providers reported under the cloud.provider attribute.
const (
	ProviderEC2        = "ec2"
	ProviderRackspace  = "rackspace"
	ProviderEucalyptus = "eucalyptus"
)

// ResolveAddress picks the single address used to reach a node, first
// match wins:
//
//  1. cloud provider present and a public hostname reported -> hostname
//  2. cloud provider present and a public IPv4 reported -> that IP
//  3. the node's fqdn, then its plain ipaddress
//
// Nodes without a cloud subtree are reached through their internal name.
func ResolveAddress(a Attrs) string {
	if Provider(a) != "" {
		if h := a.String("cloud.public_hostname"); h != "" {
			return h
		}
		if ip := a.String("cloud.public_ipv4"); ip != "" {
			return ip
		}
	}
	if fqdn := a.String("fqdn"); fqdn != "" {
		return fqdn
	}
	if ip := a.String("ipaddress"); ip != "" {
		return ip
	}
	return UnknownAddress
}

// Provider returns the node's cloud provider, or "" for non-cloud nodes.
// A missing cloud subtree classifies the node as non-cloud.
func Provider(a Attrs) string {
	if a.Sub("cloud") == nil {
		return ""
	}
	return a.String("cloud.provider")
}

// IsCloud reports whether the node runs on any recognized cloud provider.
func IsCloud(a Attrs) bool { return Provider(a) != "" }

// IsEC2 reports whether the node runs on EC2.
func IsEC2(a Attrs) bool { return Provider(a) == ProviderEC2 }

// IsRackspace reports whether the node runs on Rackspace.
func IsRackspace(a Attrs) bool { return Provider(a) == ProviderRackspace }

// IsEucalyptus reports whether the node runs on Eucalyptus.
func IsEucalyptus(a Attrs) bool { return Provider(a) == ProviderEucalyptus }
