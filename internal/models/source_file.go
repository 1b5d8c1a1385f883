package models

// Fingerprint is a fixed-size digest identifying byte-identical content.
type Fingerprint [16]byte

// SourceFile is one uploaded vector asset. It is never mutated after creation.
type SourceFile struct {
	Name        string
	Content     []byte
	Fingerprint Fingerprint
}
