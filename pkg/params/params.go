// Package params tracks the server runtime parameters reported over
// ParameterStatus messages. The server sends an initial batch during
// startup and an update whenever an effective value changes, typically
// after a SET statement or a configuration reload.
//
// https://www.postgresql.org/docs/current/protocol-flow.html#PROTOCOL-ASYNC
package params

// The hard-wired set of parameters the server always reports.
const (
	ParamApplicationName            = "application_name"
	ParamScramIterations            = "scram_iterations"
	ParamClientEncoding             = "client_encoding"
	ParamSearchPath                 = "search_path"
	ParamDateStyle                  = "DateStyle"
	ParamServerEncoding             = "server_encoding"
	ParamDefaultTransactionReadOnly = "default_transaction_read_only"
	ParamServerVersion              = "server_version"
	ParamInHotStandby               = "in_hot_standby"
	ParamSessionAuthorization       = "session_authorization"
	ParamIntegerDatetimes           = "integer_datetimes"
	ParamStandardConformingStrings  = "standard_conforming_strings"
	ParamIntervalStyle              = "IntervalStyle"
	ParamTimeZone                   = "TimeZone"
	ParamIsSuperuser                = "is_superuser"
)

// ParameterStatuses is the last-reported value of each server parameter.
// The zero value is not usable; call New.
type ParameterStatuses map[string]string

func New() ParameterStatuses {
	return ParameterStatuses{}
}

// Set records a reported value, overwriting any earlier report.
func (p ParameterStatuses) Set(name, value string) {
	p[name] = value
}

// Get returns the last reported value for name.
func (p ParameterStatuses) Get(name string) (string, bool) {
	v, ok := p[name]
	return v, ok
}

// ServerVersion returns the reported server_version, or "" if the server
// has not reported one.
func (p ParameterStatuses) ServerVersion() string {
	return p[ParamServerVersion]
}

// TimeZone returns the reported session time zone, or "" if unreported.
func (p ParameterStatuses) TimeZone() string {
	return p[ParamTimeZone]
}
