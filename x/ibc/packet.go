package ibc

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"

	errorsmod "cosmossdk.io/errors"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
)

// DeterministicAckError replaces the error text of failed receives once
// acknowledgement failures are made deterministic.
const DeterministicAckError = "ABCI code: 1: error handling packet: see events for details"

// PacketCommitment commits to the timeout and data of a packet:
// sha256(timeout timestamp ‖ revision number ‖ revision height ‖ sha256(data)),
// integers big endian.
func PacketCommitment(p *actions.Packet) [32]byte {
	dataHash := sha256.Sum256(p.Data)
	buf := make([]byte, 0, 24+len(dataHash))
	buf = binary.BigEndian.AppendUint64(buf, p.TimeoutTimestamp)
	buf = binary.BigEndian.AppendUint64(buf, p.TimeoutHeight.RevisionNumber)
	buf = binary.BigEndian.AppendUint64(buf, p.TimeoutHeight.RevisionHeight)
	buf = append(buf, dataHash[:]...)
	return sha256.Sum256(buf)
}

func hashAck(ack []byte) [32]byte { return sha256.Sum256(ack) }

// FungibleTokenPacketData is the ICS20 packet payload.
type FungibleTokenPacketData struct {
	Denom    string `json:"denom"`
	Amount   string `json:"amount"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Memo     string `json:"memo,omitempty"`
}

func (d FungibleTokenPacketData) Encode() []byte {
	bz, err := json.Marshal(d)
	if err != nil {
		panic(err)
	}
	return bz
}

func decodePacketData(bz []byte) (FungibleTokenPacketData, amount.Amount, error) {
	var d FungibleTokenPacketData
	if err := json.Unmarshal(bz, &d); err != nil {
		return d, amount.Amount{}, errorsmod.Wrap(ErrInvalidPacketData, err.Error())
	}
	if d.Denom == "" {
		return d, amount.Amount{}, errorsmod.Wrap(ErrInvalidPacketData, "empty denom")
	}
	amt, err := amount.Parse(d.Amount)
	if err != nil {
		return d, amount.Amount{}, errorsmod.Wrapf(ErrInvalidPacketData, "amount %q: %v", d.Amount, err)
	}
	if amt.IsZero() {
		return d, amount.Amount{}, errorsmod.Wrap(ErrInvalidPacketData, "zero amount")
	}
	return d, amt, nil
}

// Acknowledgement is the ICS20 acknowledgement: either a result or an error.
type Acknowledgement struct {
	Result []byte `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

var successResult = []byte{1}

func SuccessAck() Acknowledgement { return Acknowledgement{Result: successResult} }

func ErrorAck(msg string) Acknowledgement { return Acknowledgement{Error: msg} }

func (a Acknowledgement) Success() bool { return a.Error == "" && len(a.Result) > 0 }

func (a Acknowledgement) Encode() []byte {
	bz, err := json.Marshal(a)
	if err != nil {
		panic(err)
	}
	return bz
}

func decodeAck(bz []byte) (Acknowledgement, error) {
	var a Acknowledgement
	if err := json.Unmarshal(bz, &a); err != nil {
		return a, errorsmod.Wrap(ErrInvalidPacketData, "acknowledgement: "+err.Error())
	}
	if a.Error == "" && len(a.Result) == 0 {
		return a, errorsmod.Wrap(ErrInvalidPacketData, "acknowledgement holds neither result nor error")
	}
	return a, nil
}

// WithdrawalMemo is the memo of a withdrawal made on behalf of a rollup
// through its bridge account.
type WithdrawalMemo struct {
	Memo                    string `json:"memo"`
	RollupBlockNumber       uint64 `json:"rollupBlockNumber"`
	RollupWithdrawalEventID string `json:"rollupWithdrawalEventId"`
	RollupReturnAddress     string `json:"rollupReturnAddress"`
}

const maxMemoFieldLen = 256

func parseWithdrawalMemo(s string) (WithdrawalMemo, error) {
	var m WithdrawalMemo
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return m, errorsmod.Wrap(ErrInvalidMemo, err.Error())
	}
	switch {
	case m.RollupReturnAddress == "" || len(m.RollupReturnAddress) > maxMemoFieldLen:
		return m, errorsmod.Wrap(ErrInvalidMemo, "rollup return address must hold 1 to 256 bytes")
	case m.RollupWithdrawalEventID == "" || len(m.RollupWithdrawalEventID) > maxMemoFieldLen:
		return m, errorsmod.Wrap(ErrInvalidMemo, "rollup withdrawal event id must hold 1 to 256 bytes")
	case m.RollupBlockNumber == 0:
		return m, errorsmod.Wrap(ErrInvalidMemo, "rollup block number must be non-zero")
	}
	return m, nil
}

// DepositMemo is the memo an inbound transfer to a bridge account must carry.
type DepositMemo struct {
	RollupDepositAddress string `json:"rollupDepositAddress"`
}

func parseDepositMemo(s string) (DepositMemo, error) {
	var m DepositMemo
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return m, errorsmod.Wrap(ErrInvalidMemo, err.Error())
	}
	if m.RollupDepositAddress == "" {
		return m, errorsmod.Wrap(ErrInvalidMemo, "rollup deposit address must be set")
	}
	return m, nil
}
