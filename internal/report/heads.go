// Package report describes the budget heads of an office database and builds
// the cross-head status summary from per-head results.
package report

// Head is one budget category with its master and provision tables.
type Head struct {
	Code      string
	Title     string
	Master    string
	Provision string
	// Standard heads take part in the cross-head summary. The remaining heads
	// are only counted.
	Standard bool
}

// Heads lists every head in report order.
var Heads = []Head{
	{Code: "Building", Title: "Building", Master: "BudgetMasterBuilding", Provision: "BuildingProvision", Standard: true},
	{Code: "CRF", Title: "CRF", Master: "BudgetMasterCRF", Provision: "CRFProvision", Standard: true},
	{Code: "Annuity", Title: "Annuity", Master: "BudgetMasterAunty", Provision: "AuntyProvision", Standard: true},
	{Code: "NABARD", Title: "NABARD", Master: "BudgetMasterNABARD", Provision: "NABARDProvision", Standard: true},
	{Code: "Road", Title: "ROAD", Master: "BudgetMasterRoad", Provision: "RoadProvision", Standard: true},
	{Code: "2515", Title: "2515", Master: "BudgetMaster2515", Provision: "2515Provision", Standard: true},
	{Code: "DepositFund", Title: "Deposit", Master: "BudgetMasterDepositFund", Provision: "DepositFundProvision", Standard: true},
	{Code: "DPDC", Title: "DPDC", Master: "BudgetMasterDPDC", Provision: "DPDCProvision", Standard: true},
	{Code: "GAT_A", Title: "AMC", Master: "BudgetMasterGAT_A", Provision: "GAT_AProvision", Standard: true},
	{Code: "GAT_D", Title: "FDR", Master: "BudgetMasterGAT_D", Provision: "GAT_DProvision", Standard: true},
	{Code: "GAT_FBC", Title: "BCR", Master: "BudgetMasterGAT_FBC", Provision: "GAT_FBCProvision", Standard: true},
	{Code: "MLA", Title: "MLA", Master: "BudgetMasterMLA", Provision: "MLAProvision", Standard: true},
	{Code: "MP", Title: "MP", Master: "BudgetMasterMP", Provision: "MPProvision", Standard: true},
	{Code: "NonResidentialBuilding", Title: "2059", Master: "BudgetMasterNonResidentialBuilding", Provision: "NonResidentialBuildingProvision"},
	{Code: "ResidentialBuilding", Title: "2216", Master: "BudgetMasterResidentialBuilding", Provision: "ResidentialBuildingProvision"},
}

// StandardHeads returns the heads merged by the cross-head summary.
func StandardHeads() []Head {
	out := make([]Head, 0, len(Heads))
	for _, h := range Heads {
		if h.Standard {
			out = append(out, h)
		}
	}
	return out
}
