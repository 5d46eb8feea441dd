package types

const (
	// DefaultMTU is the MTU set on every device carrying a secondary VNIC
	DefaultMTU = 9000

	// NamespacePrefix prefixes the auto-derived namespace name: ons<device>
	NamespacePrefix = "ons"
	// RouteTablePrefix prefixes every routing table this agent registers
	RouteTablePrefix = "ort"

	// RouteTableMin and RouteTableMax bound the numeric ids handed out for
	// ort* tables in the iproute2 rt_tables registry
	RouteTableMin = 1000
	RouteTableMax = 1999

	// BareMetalShapePrefix marks bare metal instance shapes
	BareMetalShapePrefix = "BM"

	// NoVLANTag is the metadata vlanTag value meaning "untagged"
	NoVLANTag = "0"

	// Presentation sentinel for absent fields
	AbsentField = "-"
)

// default file locations
const (
	DefaultConfigFile        = "/etc/vnic-agent/vnic-agent.conf"
	DefaultStateFile         = "/var/lib/oci-utils/vnic_info"
	DefaultLegacyExcludeFile = "/var/lib/oci-utils/net_exclude"
	DefaultRTTablesFile      = "/etc/iproute2/rt_tables"
	DefaultNMConfFile        = "/etc/NetworkManager/NetworkManager.conf"
	DefaultNetnsDir          = "/var/run/netns"
	DefaultLockFile          = "/var/run/vnic-agent.lock"
	DefaultSSHDPath          = "/usr/sbin/sshd"
	DefaultIPPath            = "/usr/sbin/ip"
)

const (
	// DefaultMetadataEndpoint is the instance metadata service v2 base URL
	DefaultMetadataEndpoint = "http://169.254.169.254/opc/v2"
	// MetadataAuthHeader is the static authorization header IMDS v2 requires
	MetadataAuthHeader = "Bearer Oracle"
)

// metrics
const (
	MetricNamespace          = "vnic_agent"
	MetricSubsystemReconcile = "reconcile"
)
