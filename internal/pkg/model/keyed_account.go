package model

type KeyedAccount struct {
	PublicKey string `gorm:"primaryKey" json:"publicKey"`
	AccountId string `gorm:"primaryKey" json:"accountId"`
}

func (KeyedAccount) TableName() string {
	return "keyed_account"
}
