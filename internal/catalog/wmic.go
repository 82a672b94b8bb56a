package catalog

import (
	"regexp"
	"strconv"
	"strings"
)

// parseTable splits fixed-width console output into rows keyed by the
// lower-cased header names. Column boundaries come from the header line, so
// values containing spaces (drive models) survive.
func parseTable(text string) []map[string]string {
	text = strings.ReplaceAll(text, "\r", "")
	lines := strings.Split(text, "\n")

	header := -1
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			header = i
			break
		}
	}
	if header < 0 {
		return nil
	}

	type column struct {
		name  string
		start int
	}
	var cols []column
	hl := lines[header]
	for i := 0; i < len(hl); {
		if hl[i] == ' ' {
			i++
			continue
		}
		j := i
		for j < len(hl) && hl[j] != ' ' {
			j++
		}
		cols = append(cols, column{name: strings.ToLower(hl[i:j]), start: i})
		i = j
	}

	var rows []map[string]string
	for _, l := range lines[header+1:] {
		if strings.TrimSpace(l) == "" {
			continue
		}
		row := make(map[string]string, len(cols))
		for c, col := range cols {
			if col.start >= len(l) {
				row[col.name] = ""
				continue
			}
			end := len(l)
			if c+1 < len(cols) && cols[c+1].start < end {
				end = cols[c+1].start
			}
			row[col.name] = strings.TrimSpace(l[col.start:end])
		}
		rows = append(rows, row)
	}
	return rows
}

func parseUint(s string) uint64 {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ParseDiskDrives reads `wmic diskdrive get Index,Model,Size`.
func ParseDiskDrives(text string) []DiskRow {
	var out []DiskRow
	for _, row := range parseTable(text) {
		idx, err := strconv.Atoi(row["index"])
		if err != nil {
			continue
		}
		out = append(out, DiskRow{
			Index: idx,
			Model: row["model"],
			Size:  parseUint(row["size"]),
			Path:  `\\.\PHYSICALDRIVE` + strconv.Itoa(idx),
		})
	}
	return out
}

// ParseLogicalDisks reads `wmic logicaldisk get Caption,FileSystem,FreeSpace,Size`.
// DiskIndex is left at -1; see ParsePartitionMap.
func ParseLogicalDisks(text string) []VolumeRow {
	var out []VolumeRow
	for _, row := range parseTable(text) {
		caption := row["caption"]
		if caption == "" {
			continue
		}
		out = append(out, VolumeRow{
			DiskIndex:  -1,
			Caption:    caption,
			Filesystem: row["filesystem"],
			Size:       parseUint(row["size"]),
			Free:       parseUint(row["freespace"]),
		})
	}
	return out
}

var (
	antecedentRe = regexp.MustCompile(`Disk #(\d+)`)
	dependentRe  = regexp.MustCompile(`DeviceID="([^"]+)"`)
)

// ParsePartitionMap reads `wmic path Win32_LogicalDiskToPartition get
// Antecedent,Dependent` and maps volume captions to device indices.
func ParsePartitionMap(text string) map[string]int {
	out := make(map[string]int)
	for _, row := range parseTable(text) {
		a := antecedentRe.FindStringSubmatch(row["antecedent"])
		d := dependentRe.FindStringSubmatch(row["dependent"])
		if a == nil || d == nil {
			continue
		}
		idx, err := strconv.Atoi(a[1])
		if err != nil {
			continue
		}
		out[strings.ToUpper(d[1])] = idx
	}
	return out
}

// AttachVolumes fills DiskIndex from the partition map.
func AttachVolumes(volumes []VolumeRow, mapping map[string]int) []VolumeRow {
	out := make([]VolumeRow, 0, len(volumes))
	for _, v := range volumes {
		if idx, ok := mapping[strings.ToUpper(v.Caption)]; ok {
			v.DiskIndex = idx
		}
		out = append(out, v)
	}
	return out
}
