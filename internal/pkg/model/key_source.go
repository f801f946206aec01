package model

type KeySourceRecord struct {
	PublicKey      string `gorm:"primaryKey" json:"publicKey"`
	Kind           string `json:"kind"`
	DerivationPath string `json:"derivationPath"`
}

func (KeySourceRecord) TableName() string {
	return "key_source"
}
