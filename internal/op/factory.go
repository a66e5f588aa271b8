package op

// NewByType allocates a zero-value operation for an op type name, as stored
// in the op log. Used during replay to rehydrate persisted payloads.
func NewByType(name string) (Operation, bool) {
	switch name {
	case "AddCollateral":
		return &AddCollateral{}, true
	case "MoveCollateral":
		return &MoveCollateral{}, true
	case "MoveStablecoin":
		return &MoveStablecoin{}, true
	case "AllowMove":
		return &AllowMove{}, true
	case "AdjustPosition":
		return &AdjustPosition{}, true
	case "MovePosition":
		return &MovePosition{}, true
	case "OpenPosition":
		return &OpenPosition{}, true
	case "AdjustPositionByID":
		return &AdjustPositionByID{}, true
	case "GivePosition":
		return &GivePosition{}, true
	case "AllowManage":
		return &AllowManage{}, true
	case "AllowMigrate":
		return &AllowMigrate{}, true
	case "MoveCollateralByID":
		return &MoveCollateralByID{}, true
	case "MoveStablecoinByID":
		return &MoveStablecoinByID{}, true
	case "ExportPosition":
		return &ExportPosition{}, true
	case "ImportPosition":
		return &ImportPosition{}, true
	case "MovePositionByID":
		return &MovePositionByID{}, true
	case "PriceUpdate":
		return &PriceUpdate{}, true
	case "AccrueFee":
		return &AccrueFee{}, true
	case "MintUnbacked":
		return &MintUnbacked{}, true
	case "SettleBadDebt":
		return &SettleBadDebt{}, true
	case "Liquidate":
		return &Liquidate{}, true
	case "InitPool":
		return &InitPool{}, true
	case "SetPoolParam":
		return &SetPoolParam{}, true
	case "SetTotalDebtCeiling":
		return &SetTotalDebtCeiling{}, true
	case "GrantRole":
		return &GrantRole{}, true
	case "RevokeRole":
		return &RevokeRole{}, true
	case "Pause":
		return &Pause{}, true
	case "Unpause":
		return &Unpause{}, true
	case "Cage":
		return &Cage{}, true
	case "Uncage":
		return &Uncage{}, true
	case "CagePool":
		return &CagePool{}, true
	case "AccumulateBadDebt":
		return &AccumulateBadDebt{}, true
	case "RedeemLockedCollateral":
		return &RedeemLockedCollateral{}, true
	case "FinalizeDebt":
		return &FinalizeDebt{}, true
	case "FinalizeCashPrice":
		return &FinalizeCashPrice{}, true
	case "AccumulateStablecoin":
		return &AccumulateStablecoin{}, true
	case "RedeemStablecoin":
		return &RedeemStablecoin{}, true
	default:
		return nil, false
	}
}
