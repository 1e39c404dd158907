package main

// Check catalog. Every template reads metadata views only: jobs_history,
// storage_metadata, access_grants, rls_policies, cmek_keys, plus the
// provisioned scope view {scope_view} that unions job history across child
// projects. Identifier placeholders ({project}, {dataset}, {scope_view})
// are validated and spliced by the executor; value parameters are bound to
// the ? placeholders in declared order.

// ParamCutoffMs binds the run's lookback cutoff, as epoch milliseconds.
const ParamCutoffMs = "cutoff_ms"

const pricingComparisonQuery = `
SELECT
  billing_project,
  SUM(on_demand_cost) AS on_demand_cost,
  SUM(slot_cost) AS slot_cost,
  COUNT(*) AS job_count
FROM {scope_view}
WHERE start_ms >= ?
GROUP BY billing_project
ORDER BY on_demand_cost DESC`

const storageBillingQuery = `
SELECT
  project_id || '.' || dataset_id AS dataset,
  SUM(logical_cost) AS logical_cost,
  SUM(physical_cost) AS physical_cost,
  SUM(logical_bytes) AS logical_bytes,
  SUM(physical_bytes) AS physical_bytes
FROM storage_metadata
WHERE project_id = '{project}'
GROUP BY project_id, dataset_id
ORDER BY logical_cost DESC`

const slotContentionQuery = `
SELECT
  job_id,
  pending_ms,
  total_slot_ms
FROM {scope_view}
WHERE start_ms >= ?
  AND pending_ms IS NOT NULL
ORDER BY pending_ms DESC
LIMIT 1000`

const scanEfficiencyQuery = `
SELECT
  referenced_table AS table_id,
  SUM(total_billed_bytes) AS billed_bytes,
  SUM(total_processed_bytes) AS processed_bytes,
  CASE WHEN SUM(total_processed_bytes) > 0
       THEN CAST(SUM(total_billed_bytes) AS REAL) / SUM(total_processed_bytes)
       ELSE NULL END AS scan_ratio
FROM {scope_view}
WHERE start_ms >= ?
  AND referenced_table IS NOT NULL
GROUP BY referenced_table
HAVING SUM(total_billed_bytes) > 0
ORDER BY scan_ratio DESC
LIMIT 100`

const unlabeledCostQuery = `
SELECT
  SUM(CASE WHEN labels IS NULL OR labels = '' THEN on_demand_cost ELSE 0 END) AS unlabeled_cost,
  SUM(on_demand_cost) AS total_cost,
  CASE WHEN SUM(on_demand_cost) > 0
       THEN 100.0 * SUM(CASE WHEN labels IS NULL OR labels = '' THEN on_demand_cost ELSE 0 END) / SUM(on_demand_cost)
       ELSE NULL END AS unlabeled_pct
FROM {scope_view}
WHERE start_ms >= ?`

const accessGrantsQuery = `
SELECT
  role,
  principal,
  COUNT(*) AS grant_count
FROM access_grants
WHERE resource LIKE '{project}%'
GROUP BY role, principal
ORDER BY grant_count DESC
LIMIT 200`

const rlsPoliciesQuery = `
SELECT
  table_id,
  policy_name,
  grantee_count
FROM rls_policies
WHERE project_id = '{project}'
ORDER BY table_id, policy_name`

const cmekCoverageQuery = `
SELECT
  SUM(CASE WHEN kms_key_name IS NOT NULL AND kms_key_name != '' THEN 1 ELSE 0 END) AS encrypted_tables,
  COUNT(*) AS total_tables
FROM cmek_keys
WHERE project_id = '{project}'`

// Well-known check names; the classifier and digest key off these.
const (
	CheckPricingComparison = "pricing_comparison"
	CheckStorageBilling    = "storage_billing"
	CheckSlotContention    = "slot_contention"
	CheckScanEfficiency    = "scan_efficiency"
	CheckUnlabeledCost     = "unlabeled_cost"
	CheckAccessGrants      = "access_grants"
	CheckRLSPolicies       = "rls_policies"
	CheckCMEKCoverage      = "cmek_coverage"
)

// DefaultCatalog returns the ordered check sequence for one audit run.
func DefaultCatalog() []Check {
	return []Check{
		{
			Name:             CheckPricingComparison,
			Title:            "On-demand vs slot-based pricing",
			QueryTemplate:    pricingComparisonQuery,
			RequiredIdents:   []string{"scope_view"},
			NeedsProvisioned: true,
		},
		{
			Name:           CheckStorageBilling,
			Title:          "Logical vs physical storage billing",
			QueryTemplate:  storageBillingQuery,
			RequiredIdents: []string{"project"},
		},
		{
			Name:             CheckSlotContention,
			Title:            "Slot contention (job pending time)",
			QueryTemplate:    slotContentionQuery,
			RequiredIdents:   []string{"scope_view"},
			NeedsProvisioned: true,
		},
		{
			Name:             CheckScanEfficiency,
			Title:            "Scan efficiency (billed vs processed bytes)",
			QueryTemplate:    scanEfficiencyQuery,
			RequiredIdents:   []string{"scope_view"},
			NeedsProvisioned: true,
		},
		{
			Name:             CheckUnlabeledCost,
			Title:            "Unlabeled spend share",
			QueryTemplate:    unlabeledCostQuery,
			RequiredIdents:   []string{"scope_view"},
			NeedsProvisioned: true,
		},
		{
			Name:           CheckAccessGrants,
			Title:          "Access-control grants",
			QueryTemplate:  accessGrantsQuery,
			RequiredIdents: []string{"project"},
		},
		{
			Name:           CheckRLSPolicies,
			Title:          "Row-level security policies",
			QueryTemplate:  rlsPoliciesQuery,
			RequiredIdents: []string{"project"},
		},
		{
			Name:           CheckCMEKCoverage,
			Title:          "Customer-managed encryption coverage",
			QueryTemplate:  cmekCoverageQuery,
			RequiredIdents: []string{"project"},
		},
	}
}

// checkParams lists the value parameters each template binds, in order.
func checkParams(c Check) []string {
	if c.NeedsProvisioned {
		// All scope-view checks filter on the lookback cutoff.
		return []string{ParamCutoffMs}
	}
	return nil
}
