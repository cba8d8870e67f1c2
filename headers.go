package presto

// Protocol headers used to carry session state between the client and a
// Presto/Trino coordinator. See spec.md §6.
const (
	// Outbound — sent with every statement-protocol request.
	UserHeader        = "X-Presto-User"
	TimeZoneHeader    = "X-Presto-Time-Zone"
	LanguageHeader    = "X-Presto-Language"
	TransactionHeader = "X-Presto-Transaction-Id"

	// Outbound — sent only when the corresponding session field is set.
	SourceHeader  = "X-Presto-Source"
	CatalogHeader = "X-Presto-Catalog"
	SchemaHeader  = "X-Presto-Schema"

	// Outbound — repeated, one per entry.
	SessionHeader           = "X-Presto-Session"
	PreparedStatementHeader = "X-Presto-Prepared-Statement"

	// Inbound — session mutations harvested from every response.
	SetSessionHeader           = "X-Presto-Set-Session"
	ClearSessionHeader         = "X-Presto-Clear-Session"
	AddedPrepareHeader         = "X-Presto-Added-Prepare"
	DeallocatedPrepareHeader   = "X-Presto-Deallocated-Prepare"
	StartedTransactionIDHeader = "X-Presto-Started-Transaction-Id"
	ClearTransactionIDHeader   = "X-Presto-Clear-Transaction-Id"

	// NoTransactionID is the wire value for an absent transaction id.
	NoTransactionID = "NONE"

	// UserAgentPrefix names the client in the User-Agent header.
	UserAgentPrefix = "StatementClient"

	// ClientVersion is reported in the User-Agent header.
	ClientVersion = "1.0"
)
