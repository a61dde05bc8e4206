package retrieval

import "fmt"

// Partition naming conventions. Identifiers are opaque strings prefixed by
// scope so operators can tell them apart in stats and logs.
const (
	personPartitionPrefix   = "emp_"
	categoryPartitionPrefix = "cat_"
)

// PersonPartition maps a person identifier to its partition.
func PersonPartition(personID string) string {
	return personPartitionPrefix + personID
}

// CategoryPartition maps a category slug to its partition.
func CategoryPartition(slug string) string {
	return categoryPartitionPrefix + slug
}

// resolvePartitions maps the scope options to concrete partitions,
// deduplicated, preserving first-mention order.
func (e *Engine) resolvePartitions(opts Options) []string {
	seen := make(map[string]struct{})
	var partitions []string

	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		partitions = append(partitions, p)
	}

	for _, person := range opts.Persons {
		add(PersonPartition(person))
	}
	for _, category := range opts.Categories {
		add(CategoryPartition(category))
	}
	if opts.IncludePersonal && opts.UserID != "" {
		add(PersonPartition(opts.UserID))
	}
	if opts.IncludeOrganization {
		add(e.orgPartition)
	}

	return partitions
}

// boundPartitions enforces the fan-out ceiling.
func (e *Engine) boundPartitions(partitions []string) ([]string, error) {
	if e.maxPartitions > 0 && len(partitions) > e.maxPartitions {
		return nil, fmt.Errorf("partition fan-out %d exceeds limit %d", len(partitions), e.maxPartitions)
	}
	return partitions, nil
}
