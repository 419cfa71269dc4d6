package hive

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NoClustersMessage is shown when a listing matches nothing.
const NoClustersMessage = "No clusters found matching the specified filters."

// stateListLimit is how many cluster names are listed under each state.
const stateListLimit = 10

var rule = strings.Repeat("=", 50)

// Filter selects clusters by case-insensitive substring matches. Empty
// fields match everything; set fields are combined with AND.
type Filter struct {
	Platform string
	Name     string
	State    string
	Region   string
	Owner    string
}

func containsFold(value, substr string) bool {
	return substr == "" || strings.Contains(strings.ToLower(value), strings.ToLower(substr))
}

// Matches reports whether c passes every set filter.
func (f Filter) Matches(c Cluster) bool {
	return containsFold(c.Platform, f.Platform) &&
		containsFold(c.Name, f.Name) &&
		containsFold(c.State, f.State) &&
		containsFold(c.Region, f.Region) &&
		containsFold(c.Owner, f.Owner)
}

// Apply returns the clusters that match f.
func (f Filter) Apply(clusters []Cluster) []Cluster {
	out := make([]Cluster, 0, len(clusters))
	for _, c := range clusters {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	return out
}

func na(value string) string {
	return orDefault(value, NotAvailable)
}

// FormatTable renders clusters as a fixed-width table sorted by name. With
// details, the pool column is replaced by the API and console URLs.
func FormatTable(clusters []Cluster, details bool) string {
	if len(clusters) == 0 {
		return NoClustersMessage
	}

	sorted := append([]Cluster(nil), clusters...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var header string
	if details {
		header = fmt.Sprintf("%-30s %-10s %-15s %-10s %-20s %-50s %-50s",
			"NAME", "PLATFORM", "REGION", "VERSION", "STATE", "API URL", "CONSOLE URL")
	} else {
		header = fmt.Sprintf("%-30s %-25s %-10s %-15s %-10s %-20s",
			"NAME", "POOL", "PLATFORM", "REGION", "VERSION", "STATE")
	}
	separator := strings.Repeat("=", len(header))

	lines := []string{
		fmt.Sprintf("Total clusters found: %d", len(sorted)),
		separator,
		header,
		separator,
	}
	for _, c := range sorted {
		if details {
			lines = append(lines, fmt.Sprintf("%-30s %-10s %-15s %-10s %-20s %-50s %-50s",
				na(c.Name), na(c.Platform), na(c.Region), na(c.Version), na(c.State), na(c.APIURL), na(c.ConsoleURL)))
		} else {
			lines = append(lines, fmt.Sprintf("%-30s %-25s %-10s %-15s %-10s %-20s",
				na(c.Name), na(c.Pool), na(c.Platform), na(c.Region), na(c.Version), na(c.State)))
		}
	}
	lines = append(lines, separator)
	return strings.Join(lines, "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PlatformStatistics counts clusters per platform and state. Claims
// without a deployment have neither and are left out.
func PlatformStatistics(clusters []Cluster) string {
	stats := make(map[string]map[string]int)
	for _, c := range clusters {
		if !c.HasDeployment() {
			continue
		}
		if stats[c.Platform] == nil {
			stats[c.Platform] = make(map[string]int)
		}
		stats[c.Platform][c.State]++
	}

	upper := cases.Upper(language.Und)
	lines := []string{"Platform Statistics", rule}
	total := 0
	for _, platform := range sortedKeys(stats) {
		states := stats[platform]
		platformTotal := 0
		for _, n := range states {
			platformTotal += n
		}
		total += platformTotal

		lines = append(lines, fmt.Sprintf("%s: %d clusters", upper.String(platform), platformTotal))
		for _, state := range sortedKeys(states) {
			lines = append(lines, fmt.Sprintf("  - %s: %d", state, states[state]))
		}
		lines = append(lines, "")
	}
	lines = append(lines, rule, fmt.Sprintf("Total: %d clusters", total))
	return strings.Join(lines, "\n")
}

// StateStatistics groups cluster names by state, listing at most ten names
// per state.
func StateStatistics(clusters []Cluster) string {
	stats := make(map[string][]string)
	for _, c := range clusters {
		if !c.HasDeployment() {
			continue
		}
		stats[c.State] = append(stats[c.State], c.Name)
	}

	lines := []string{"State Statistics", rule}
	total := 0
	for _, state := range sortedKeys(stats) {
		names := stats[state]
		sort.Strings(names)
		total += len(names)

		lines = append(lines, fmt.Sprintf("%s: %d clusters", state, len(names)))
		for _, name := range names[:min(len(names), stateListLimit)] {
			lines = append(lines, "  - "+name)
		}
		if len(names) > stateListLimit {
			lines = append(lines, fmt.Sprintf("  ... and %d more", len(names)-stateListLimit))
		}
		lines = append(lines, "")
	}
	lines = append(lines, rule, fmt.Sprintf("Total: %d clusters", total))
	return strings.Join(lines, "\n")
}

// OwnerCount is one owner and how many clusters they hold.
type OwnerCount struct {
	Name         string `json:"name"`
	ClusterCount int    `json:"cluster_count"`
}

// OwnerSummary lists the distinct cluster owners.
type OwnerSummary struct {
	TotalOwners int          `json:"total_owners"`
	Owners      []OwnerCount `json:"owners"`
}

// Owners counts clusters per owner, most clusters first and then by name.
// Clusters without a known owner are not counted.
func Owners(clusters []Cluster) OwnerSummary {
	counts := make(map[string]int)
	for _, c := range clusters {
		if c.Owner == "" || c.Owner == Unknown {
			continue
		}
		counts[c.Owner]++
	}

	owners := make([]OwnerCount, 0, len(counts))
	for name, n := range counts {
		owners = append(owners, OwnerCount{Name: name, ClusterCount: n})
	}
	sort.Slice(owners, func(i, j int) bool {
		if owners[i].ClusterCount != owners[j].ClusterCount {
			return owners[i].ClusterCount > owners[j].ClusterCount
		}
		return owners[i].Name < owners[j].Name
	})
	return OwnerSummary{TotalOwners: len(owners), Owners: owners}
}
