package keymgmt

type SourceKind string

const (
	SourceHardware       SourceKind = "hardware"
	SourceRemoteRedirect SourceKind = "remote_redirect"
	SourceRawKey         SourceKind = "raw_key"
)

// KeySource records which custody backend owns a public key. Raw secrets
// live in the Vault, never here.
type KeySource struct {
	Kind           SourceKind `json:"kind"`
	DerivationPath string     `json:"derivationPath,omitempty"`
}

func Hardware(derivationPath string) KeySource {
	return KeySource{Kind: SourceHardware, DerivationPath: derivationPath}
}

func RemoteRedirect() KeySource {
	return KeySource{Kind: SourceRemoteRedirect}
}

func RawKey() KeySource {
	return KeySource{Kind: SourceRawKey}
}
