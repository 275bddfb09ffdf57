package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/notemesh/notemesh-audit/internal/audit"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var res StatusResult
	err := s.crawler.View(r.Context(), func(dag *audit.SpendDag) {
		res.Source = dag.Source().String()
		res.Entries = dag.Len()
		res.Utxos = len(dag.Utxos())
		res.Faults = len(dag.Faults())
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "dag unavailable: %v", err)
		return
	}

	if s.node != nil {
		res.NodeID = s.node.ID().String()
		res.Peers = s.node.PeerCount()
		res.Addrs = s.node.Addrs()
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUtxos(w http.ResponseWriter, r *http.Request) {
	var res UtxosResult
	err := s.crawler.View(r.Context(), func(dag *audit.SpendDag) {
		utxos := dag.Utxos()
		res.Count = len(utxos)
		res.Utxos = make([]string, 0, len(utxos))
		for _, addr := range utxos {
			res.Utxos = append(res.Utxos, addr.String())
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "dag unavailable: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFaults(w http.ResponseWriter, r *http.Request) {
	var res FaultsResult
	err := s.crawler.View(r.Context(), func(dag *audit.SpendDag) {
		res.Faults = faultEntries(dag.Faults())
		res.Count = len(res.Faults)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "dag unavailable: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFaultsAt(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddr(w, r)
	if !ok {
		return
	}

	var res FaultsResult
	err := s.crawler.View(r.Context(), func(dag *audit.SpendDag) {
		res.Faults = faultEntries(dag.SpendFaults(addr))
		res.Count = len(res.Faults)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "dag unavailable: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSpendAt(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddr(w, r)
	if !ok {
		return
	}

	res := SpendResult{Addr: addr.String()}
	err := s.crawler.View(r.Context(), func(dag *audit.SpendDag) {
		switch dag.Entry(addr).(type) {
		case audit.SpendEntry:
			res.Status = SpendStatusSpend
			res.Spends = dag.SpendAt(addr)
		case audit.DoubleSpendEntry:
			res.Status = SpendStatusDoubleSpend
			res.Spends = dag.SpendAt(addr)
		case audit.UtxoEntry:
			res.Status = SpendStatusUtxo
		case audit.UnexploredEntry:
			res.Status = SpendStatusUnexplored
		default:
			res.Status = SpendStatusUnknown
		}
		res.Faults = faultEntries(dag.SpendFaults(addr))
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "dag unavailable: %v", err)
		return
	}
	if res.Status == SpendStatusUnknown {
		writeJSON(w, http.StatusNotFound, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubmitSpend(w http.ResponseWriter, r *http.Request) {
	body := io.LimitReader(r.Body, maxBodySize)
	var spend ledger.SignedSpend
	if err := json.NewDecoder(body).Decode(&spend); err != nil {
		writeError(w, http.StatusBadRequest, "invalid spend: %v", err)
		return
	}
	if err := spend.Verify(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid spend: %v", err)
		return
	}

	addr := spend.Address()
	if err := s.crawler.AddSpend(r.Context(), addr, &spend); err != nil {
		writeError(w, http.StatusBadGateway, "record spend: %v", err)
		return
	}

	res := SubmitSpendResult{Addr: addr.String()}
	if s.node != nil {
		if err := s.node.AnnounceSpend(&spend); err != nil {
			s.logger.Warn().Err(err).Str("addr", addr.Short()).Msg("spend gossip announce failed")
		} else {
			res.Announced = true
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	err := s.crawler.View(r.Context(), func(dag *audit.SpendDag) {
		if err := dag.WriteDot(w); err != nil {
			s.logger.Error().Err(err).Msg("dot export failed")
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "dag unavailable: %v", err)
	}
}

// pathAddr parses the {addr} path segment, writing a 400 on failure.
func pathAddr(w http.ResponseWriter, r *http.Request) (types.SpendAddress, bool) {
	addr, err := types.ParseSpendAddress(r.PathValue("addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address: %v", err)
		return types.SpendAddress{}, false
	}
	return addr, true
}
