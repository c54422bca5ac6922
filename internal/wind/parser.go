package wind

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The anemometer endpoint serves a plain HTML table:
//
//	<tr><td>29.10.2022 22:45</td><td>СЗЗ (301°)</td><td>5.4</td></tr>
//
// The layout is fixed, so the rows are pulled out with regular
// expressions instead of a full HTML parser.
var (
	rowRe       = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	cellRe      = regexp.MustCompile(`(?is)<td[^>]*>(.*?)</td>`)
	tagRe       = regexp.MustCompile(`(?s)<[^>]*>`)
	directionRe = regexp.MustCompile(`([0-9]{1,3})°`)
)

const observationTimeLayout = "02.01.2006 15:04"

// Parser extracts observations from the anemometer page. Timestamps on the
// page carry no zone, so the station's location must be supplied.
type Parser struct {
	Location *time.Location
}

// Parse returns the observations in page order. Header rows are skipped;
// a data row that cannot be parsed is an error, since it means the page
// format changed.
func (p *Parser) Parse(input string) ([]Observation, error) {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	var result []Observation
	for _, row := range rowRe.FindAllStringSubmatch(input, -1) {
		cells := cellRe.FindAllStringSubmatch(row[1], -1)
		if len(cells) == 0 {
			// header row (<th>) or decoration
			continue
		}
		if len(cells) < 3 {
			return nil, fmt.Errorf("parsing observation row: want 3 columns, got %d", len(cells))
		}

		ts, err := time.ParseInLocation(observationTimeLayout, cellText(cells[0][1]), loc)
		if err != nil {
			return nil, fmt.Errorf("parsing observation time: %w", err)
		}

		direction, err := parseDirection(cellText(cells[1][1]))
		if err != nil {
			return nil, fmt.Errorf("parsing wind direction: %w", err)
		}

		speed, err := strconv.ParseFloat(cellText(cells[2][1]), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing wind speed: %w", err)
		}

		result = append(result, Observation{
			Time:      ts,
			Direction: direction,
			AvgSpeed:  speed,
		})
	}

	return result, nil
}

// parseDirection pulls the numeric angle out of a cell like "СЗЗ (301°)".
func parseDirection(input string) (uint16, error) {
	caps := directionRe.FindStringSubmatch(input)
	if caps == nil {
		return 0, fmt.Errorf("no direction angle in %q", input)
	}
	n, err := strconv.Atoi(caps[1])
	if err != nil || n > 360 {
		return 0, fmt.Errorf("invalid direction angle %q", caps[1])
	}
	return uint16(n % 360), nil
}

func cellText(cell string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(cell, ""))
}
