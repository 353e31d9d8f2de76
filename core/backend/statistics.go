// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/lib/pq"

	"github.com/relabs-tech/kurbisio-cms/core/logger"
)

// TypeStatistics represents information about the table of a content type
type TypeStatistics struct {
	Type         string  `json:"type"`
	Table        string  `json:"table"`
	Count        int64   `json:"count"`
	SizeMB       float64 `json:"size_mb"`
	AverageSizeB float64 `json:"average_size_b"`
}

// StatisticsDetails represents information about all content tables
type StatisticsDetails struct {
	Types      []TypeStatistics `json:"types"`
	Components []string         `json:"components"`
}

func (b *Backend) handleStatistics(router *mux.Router) {
	logger.Default().Debugln("statistics")
	logger.Default().Debugln("  handle statistics route: /schema/statistics GET")
	router.HandleFunc("/schema/statistics", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.statisticsWithAuth(w, r)
	}).Methods(http.MethodOptions, http.MethodGet)
}

func (b *Backend) statisticsWithAuth(w http.ResponseWriter, r *http.Request) {
	if !b.requireAdmin(w, r) {
		return
	}
	ctx := r.Context()
	types, err := b.catalog.Types(ctx)
	if err != nil {
		writeError(w, r, "4028", err)
		return
	}
	// sorted so that the ETag is unchanged regardless of the catalog order
	sort.Slice(types, func(i, j int) bool { return types[i].Slug < types[j].Slug })

	s := StatisticsDetails{Types: []TypeStatistics{}, Components: []string{}}
	for _, ct := range types {
		if !ct.HasTable() {
			s.Components = append(s.Components, ct.Slug)
			continue
		}
		var size, count int64
		row := b.db.QueryRowContext(ctx, `SELECT pg_total_relation_size(`+pq.QuoteLiteral(b.db.Table(ct.Table))+`), count(*) FROM `+
			b.db.Table(ct.Table)+` WHERE deleted_at IS NULL;`)
		if err := row.Scan(&size, &count); err != nil {
			logger.FromContext(ctx).WithError(err).Errorln("Error 4029: Scan")
			http.Error(w, "Error 4029", http.StatusInternalServerError)
			return
		}
		var averageSize float64
		if count != 0 {
			averageSize = float64(size / count)
		}
		s.Types = append(s.Types, TypeStatistics{
			Type:         ct.Slug,
			Table:        ct.Table,
			Count:        count,
			SizeMB:       float64(size) / 1024. / 1024.,
			AverageSizeB: averageSize,
		})
	}
	writeJSON(w, r, http.StatusOK, s)
}
