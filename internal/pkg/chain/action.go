package chain

import (
	"github.com/holiman/uint256"
)

type ActionKind uint8

// Variant order is the on-chain enum order.
const (
	ActionCreateAccount ActionKind = iota
	ActionDeployContract
	ActionFunctionCall
	ActionTransfer
	ActionStake
	ActionAddKey
	ActionDeleteKey
	ActionDeleteAccount
)

func (k ActionKind) String() string {
	switch k {
	case ActionCreateAccount:
		return "CreateAccount"
	case ActionDeployContract:
		return "DeployContract"
	case ActionFunctionCall:
		return "FunctionCall"
	case ActionTransfer:
		return "Transfer"
	case ActionStake:
		return "Stake"
	case ActionAddKey:
		return "AddKey"
	case ActionDeleteKey:
		return "DeleteKey"
	case ActionDeleteAccount:
		return "DeleteAccount"
	default:
		return "Unknown"
	}
}

// FunctionCallPermission restricts an access key to calls on one receiver.
type FunctionCallPermission struct {
	Allowance   *uint256.Int
	ReceiverID  AccountID
	MethodNames []string
}

// AccessKey permission is full access when FunctionCall is nil.
type AccessKey struct {
	Nonce        uint64
	FunctionCall *FunctionCallPermission
}

// Action is one primitive operation. Only the fields of Kind are meaningful.
type Action struct {
	Kind ActionKind

	Code []byte

	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    *uint256.Int

	Stake *uint256.Int

	PublicKey PublicKey
	AccessKey AccessKey

	BeneficiaryID AccountID
}

func CreateAccount() Action {
	return Action{Kind: ActionCreateAccount}
}

func DeployContract(code []byte) Action {
	return Action{Kind: ActionDeployContract, Code: code}
}

func FunctionCall(methodName string, args []byte, gas uint64, deposit *uint256.Int) Action {
	if deposit == nil {
		deposit = new(uint256.Int)
	}
	return Action{Kind: ActionFunctionCall, MethodName: methodName, Args: args, Gas: gas, Deposit: deposit}
}

func Transfer(amount *uint256.Int) Action {
	return Action{Kind: ActionTransfer, Deposit: amount}
}

func Stake(amount *uint256.Int, pk PublicKey) Action {
	return Action{Kind: ActionStake, Stake: amount, PublicKey: pk}
}

func AddFullAccessKey(pk PublicKey) Action {
	return Action{Kind: ActionAddKey, PublicKey: pk}
}

func AddFunctionCallKey(pk PublicKey, permission FunctionCallPermission) Action {
	return Action{Kind: ActionAddKey, PublicKey: pk, AccessKey: AccessKey{FunctionCall: &permission}}
}

func DeleteKey(pk PublicKey) Action {
	return Action{Kind: ActionDeleteKey, PublicKey: pk}
}

func DeleteAccount(beneficiary AccountID) Action {
	return Action{Kind: ActionDeleteAccount, BeneficiaryID: beneficiary}
}
