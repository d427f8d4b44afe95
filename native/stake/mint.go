package stake

import (
	"dlanstake/core/events"
	"dlanstake/crypto"
	"dlanstake/native/common"
)

// StakeAndMint is the legacy deposit: the lamports forwarded equal the token
// units minted.
func (e *Engine) StakeAndMint(signer crypto.KeySigner, accts MintAccounts, amount uint64) error {
	return e.StakeAndMintPriced(signer, accts, amount, amount)
}

// StakeAndMintPriced forwards solLamports from the signer to the admin
// account, then mints mintAmount to the signer's associated token account
// under the derived mint authority. No rate between the two is enforced.
func (e *Engine) StakeAndMintPriced(signer crypto.KeySigner, accts MintAccounts, solLamports, mintAmount uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, common.ModuleStake); err != nil {
		return err
	}
	user := signer.Key()
	userToken, err := e.state.CreateAssociatedTokenAccount(user, accts.Mint)
	if err != nil {
		return err
	}
	if err := e.state.TransferLamports(user, accts.Admin, signer, solLamports); err != nil {
		return err
	}
	mintAuth, err := crypto.NewProgramSigner(e.programID, accts.MintAuthorityBump, []byte(crypto.MintAuthoritySeed))
	if err != nil {
		return err
	}
	if err := e.state.MintTo(accts.Mint, userToken, mintAuth, mintAmount); err != nil {
		return err
	}
	e.emit(events.StakeMinted{
		Authority: user,
		Admin:     accts.Admin,
		Mint:      accts.Mint,
		Lamports:  solLamports,
		Minted:    mintAmount,
	})
	return nil
}
