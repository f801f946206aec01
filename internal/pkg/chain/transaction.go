package chain

import (
	"encoding/base64"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/holiman/uint256"
	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/borsh"
)

type BlockHash [32]byte

func ParseBlockHash(s string) (BlockHash, error) {
	var h BlockHash
	data := base58.Decode(s)
	if len(data) != len(h) {
		return h, errors.Errorf("block hash %q decodes to %d bytes", s, len(data))
	}
	copy(h[:], data)
	return h, nil
}

func (h BlockHash) String() string {
	return base58.Encode(h[:])
}

// Transaction is built once per signing attempt and not modified afterwards.
type Transaction struct {
	SignerID   AccountID
	PublicKey  PublicKey
	Nonce      uint64
	ReceiverID AccountID
	BlockHash  BlockHash
	Actions    []Action
}

type SignedTransaction struct {
	Transaction Transaction
	Signature   Signature
}

// Serialize returns the borsh encoding that is hashed and signed.
func (tx Transaction) Serialize() []byte {
	w := borsh.NewWriter()
	writeTransaction(w, tx)
	return w.Bytes()
}

// Hash is the sha256 of the serialized transaction.
func (tx Transaction) Hash() [32]byte {
	return sha256.Sum256(tx.Serialize())
}

func (tx Transaction) HashString() string {
	h := tx.Hash()
	return base58.Encode(h[:])
}

func (stx SignedTransaction) Serialize() []byte {
	w := borsh.NewWriter()
	writeTransaction(w, stx.Transaction)
	w.WriteU8(uint8(stx.Signature.Type)).WriteFixed(stx.Signature.Data[:])
	return w.Bytes()
}

func (stx SignedTransaction) Base64() string {
	return base64.StdEncoding.EncodeToString(stx.Serialize())
}

func writePublicKey(w *borsh.Writer, pk PublicKey) {
	w.WriteU8(uint8(pk.Type)).WriteFixed(pk.Data[:])
}

func writeTransaction(w *borsh.Writer, tx Transaction) {
	w.WriteString(tx.SignerID)
	writePublicKey(w, tx.PublicKey)
	w.WriteU64(tx.Nonce)
	w.WriteString(tx.ReceiverID)
	w.WriteFixed(tx.BlockHash[:])
	w.WriteU32(uint32(len(tx.Actions)))
	for _, a := range tx.Actions {
		writeAction(w, a)
	}
}

func writeAction(w *borsh.Writer, a Action) {
	w.WriteU8(uint8(a.Kind))
	switch a.Kind {
	case ActionCreateAccount:
	case ActionDeployContract:
		w.WriteBytes(a.Code)
	case ActionFunctionCall:
		w.WriteString(a.MethodName).WriteBytes(a.Args).WriteU64(a.Gas).WriteU128(a.Deposit)
	case ActionTransfer:
		w.WriteU128(a.Deposit)
	case ActionStake:
		w.WriteU128(a.Stake)
		writePublicKey(w, a.PublicKey)
	case ActionAddKey:
		writePublicKey(w, a.PublicKey)
		w.WriteU64(a.AccessKey.Nonce)
		if a.AccessKey.FunctionCall == nil {
			w.WriteU8(1)
			return
		}
		p := a.AccessKey.FunctionCall
		w.WriteU8(0)
		if p.Allowance == nil {
			w.WriteU8(0)
		} else {
			w.WriteU8(1).WriteU128(p.Allowance)
		}
		w.WriteString(p.ReceiverID)
		w.WriteU32(uint32(len(p.MethodNames)))
		for _, m := range p.MethodNames {
			w.WriteString(m)
		}
	case ActionDeleteKey:
		writePublicKey(w, a.PublicKey)
	case ActionDeleteAccount:
		w.WriteString(a.BeneficiaryID)
	}
}

// DecodeTransaction parses a borsh encoded transaction.
func DecodeTransaction(b []byte) (*Transaction, error) {
	r := borsh.NewReader(b)
	tx, err := readTransaction(r)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, errors.Wrapf(borsh.ErrStateDecode, "%d trailing bytes after transaction", r.Remaining())
	}
	return tx, nil
}

func readPublicKey(r *borsh.Reader) (PublicKey, error) {
	var pk PublicKey
	t, err := r.ReadEnumTag("KeyType", 1)
	if err != nil {
		return pk, err
	}
	data, err := r.ReadFixed(len(pk.Data))
	if err != nil {
		return pk, err
	}
	pk.Type = KeyType(t)
	copy(pk.Data[:], data)
	return pk, nil
}

func readTransaction(r *borsh.Reader) (*Transaction, error) {
	var tx Transaction
	var err error
	if tx.SignerID, err = r.ReadString(); err != nil {
		return nil, err
	}
	if tx.PublicKey, err = readPublicKey(r); err != nil {
		return nil, err
	}
	if tx.Nonce, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if tx.ReceiverID, err = r.ReadString(); err != nil {
		return nil, err
	}
	hash, err := r.ReadFixed(len(tx.BlockHash))
	if err != nil {
		return nil, err
	}
	copy(tx.BlockHash[:], hash)
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		a, err := readAction(r)
		if err != nil {
			return nil, errors.Wrapf(err, "action %d", i)
		}
		tx.Actions = append(tx.Actions, a)
	}
	return &tx, nil
}

func readAction(r *borsh.Reader) (Action, error) {
	tag, err := r.ReadEnumTag("Action", uint8(ActionDeleteAccount)+1)
	if err != nil {
		return Action{}, err
	}
	a := Action{Kind: ActionKind(tag)}
	switch a.Kind {
	case ActionCreateAccount:
	case ActionDeployContract:
		a.Code, err = r.ReadBytes()
	case ActionFunctionCall:
		if a.MethodName, err = r.ReadString(); err != nil {
			return a, err
		}
		if a.Args, err = r.ReadBytes(); err != nil {
			return a, err
		}
		if a.Gas, err = r.ReadU64(); err != nil {
			return a, err
		}
		a.Deposit, err = r.ReadU128()
	case ActionTransfer:
		a.Deposit, err = r.ReadU128()
	case ActionStake:
		if a.Stake, err = r.ReadU128(); err != nil {
			return a, err
		}
		a.PublicKey, err = readPublicKey(r)
	case ActionAddKey:
		if a.PublicKey, err = readPublicKey(r); err != nil {
			return a, err
		}
		if a.AccessKey.Nonce, err = r.ReadU64(); err != nil {
			return a, err
		}
		a.AccessKey.FunctionCall, err = readPermission(r)
	case ActionDeleteKey:
		a.PublicKey, err = readPublicKey(r)
	case ActionDeleteAccount:
		a.BeneficiaryID, err = r.ReadString()
	}
	return a, err
}

func readPermission(r *borsh.Reader) (*FunctionCallPermission, error) {
	tag, err := r.ReadEnumTag("AccessKeyPermission", 2)
	if err != nil {
		return nil, err
	}
	if tag == 1 {
		return nil, nil
	}
	var p FunctionCallPermission
	hasAllowance, err := r.ReadOptionTag()
	if err != nil {
		return nil, err
	}
	if hasAllowance {
		if p.Allowance, err = r.ReadU128(); err != nil {
			return nil, err
		}
	}
	if p.ReceiverID, err = r.ReadString(); err != nil {
		return nil, err
	}
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		m, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		p.MethodNames = append(p.MethodNames, m)
	}
	return &p, nil
}

// TotalDeposit sums the deposits attached to all actions.
func (tx Transaction) TotalDeposit() *uint256.Int {
	total := new(uint256.Int)
	for _, a := range tx.Actions {
		if a.Deposit != nil {
			total.Add(total, a.Deposit)
		}
	}
	return total
}
