package usage

// Aggregate builds the FamilyReport from per-line fetch results. The entry
// sequence preserves the order and count of the input; unavailable lines keep
// their position with an explicit marker and contribute nothing to the totals.
// Numeric totals sum only finite allowances, so the result is independent of
// the order results are supplied in.
func Aggregate(results []LineResult) FamilyReport {
	report := FamilyReport{
		Lines:  make([]LineEntry, 0, len(results)),
		Totals: Totals{Lines: len(results)},
	}

	for _, res := range results {
		entry := LineEntry{Line: res.Line}

		if res.Unavailable() {
			entry.Unavailable = true
			if res.Err != nil {
				entry.Reason = res.Err.Error()
			}
			report.Totals.Unavailable++
			report.Lines = append(report.Lines, entry)
			continue
		}

		entry.Record = res.Record
		report.Lines = append(report.Lines, entry)

		addQuantity(&report.Totals.Data, &report.Totals.UnlimitedData, res.Record.Data)
		addQuantity(&report.Totals.Voice, &report.Totals.UnlimitedVoice, res.Record.Voice)
		addQuantity(&report.Totals.SMS, &report.Totals.UnlimitedSMS, res.Record.SMS)
	}

	return report
}

// addQuantity folds one line's quantity into the totals. Unlimited lines are
// excluded from the numeric sum entirely and only raise the flag.
func addQuantity(total *Quantity, unlimited *bool, q Quantity) {
	if q.IsUnlimited() {
		*unlimited = true
		return
	}
	total.Used += q.Used
	total.Allowance += q.Allowance
}
