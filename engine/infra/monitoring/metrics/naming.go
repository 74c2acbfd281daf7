package metrics

import "strings"

// Prefix namespaces every metric the service exports.
const Prefix = "tenantflow"

// MetricName prefixes name unless it already carries the prefix.
func MetricName(name string) string {
	if strings.HasPrefix(name, Prefix+"_") {
		return name
	}
	return Prefix + "_" + name
}

// MetricNameWithSubsystem builds tenantflow_<subsystem>_<name>.
func MetricNameWithSubsystem(subsystem, name string) string {
	if subsystem == "" {
		return MetricName(name)
	}
	return MetricName(subsystem + "_" + name)
}
