package forge

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
)

type rpcFunc = func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error)

// Register adds every visforge RPC to the server.
func (f *NakamaForge) Register(initializer runtime.Initializer) error {
	if err := initializer.RegisterRpc(RpcIdState, rpcState(f)); err != nil {
		return err
	}
	if err := initializer.RegisterRpc(RpcIdConjure, rpcConjure(f)); err != nil {
		return err
	}
	if err := initializer.RegisterRpc(RpcIdCraft, rpcCraft(f)); err != nil {
		return err
	}
	if err := initializer.RegisterRpc(RpcIdUnlock, rpcUnlock(f)); err != nil {
		return err
	}
	if err := initializer.RegisterRpc(RpcIdQuestAdvance, rpcQuestAdvance(f)); err != nil {
		return err
	}
	if err := initializer.RegisterRpc(RpcIdUpgrade, rpcUpgrade(f)); err != nil {
		return err
	}
	if err := initializer.RegisterRpc(RpcIdTick, rpcTick(f)); err != nil {
		return err
	}
	return nil
}

func contextUserID(ctx context.Context) (string, error) {
	userId, ok := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if !ok || userId == "" {
		return "", runtime.NewError("user id not found in context", INVALID_ARGUMENT_ERROR_CODE)
	}
	return userId, nil
}

func marshalResponse(logger runtime.Logger, name string, response any) (string, error) {
	data, err := json.Marshal(response)
	if err != nil {
		logger.Error("Failed to marshal %s response: %v", name, err)
		return "", runtime.NewError("failed to marshal "+name+" response", INTERNAL_ERROR_CODE)
	}
	return string(data), nil
}

func rpcState(f *NakamaForge) rpcFunc {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userId, err := contextUserID(ctx)
		if err != nil {
			return "", err
		}

		view, err := f.State(ctx, logger, nk, userId)
		if err != nil {
			return "", toRuntimeError(err)
		}

		return marshalResponse(logger, "state", view)
	}
}

func rpcConjure(f *NakamaForge) rpcFunc {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userId, err := contextUserID(ctx)
		if err != nil {
			return "", err
		}

		var request ConjureRequest
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &request); err != nil {
				logger.Error("Failed to unmarshal ConjureRequest: %v", err)
				return "", runtime.NewError("failed to unmarshal conjure request", INVALID_ARGUMENT_ERROR_CODE)
			}
		}

		results, view, err := f.Conjure(ctx, logger, nk, userId, request.Count)
		if err != nil {
			return "", toRuntimeError(err)
		}

		return marshalResponse(logger, "conjure", &ConjureResponse{Results: results, State: view})
	}
}

func rpcCraft(f *NakamaForge) rpcFunc {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userId, err := contextUserID(ctx)
		if err != nil {
			return "", err
		}

		var request CraftRequest
		if err := json.Unmarshal([]byte(payload), &request); err != nil {
			logger.Error("Failed to unmarshal CraftRequest: %v", err)
			return "", runtime.NewError("failed to unmarshal craft request", INVALID_ARGUMENT_ERROR_CODE)
		}

		if request.Category == "" || request.Item == "" {
			return "", runtime.NewError("category and item are required", INVALID_ARGUMENT_ERROR_CODE)
		}

		view, err := f.Craft(ctx, logger, nk, userId, request.Category, request.Item)
		if err != nil {
			return "", toRuntimeError(err)
		}

		return marshalResponse(logger, "craft", view)
	}
}

func rpcUnlock(f *NakamaForge) rpcFunc {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userId, err := contextUserID(ctx)
		if err != nil {
			return "", err
		}

		var request UnlockRequest
		if err := json.Unmarshal([]byte(payload), &request); err != nil {
			logger.Error("Failed to unmarshal UnlockRequest: %v", err)
			return "", runtime.NewError("failed to unmarshal unlock request", INVALID_ARGUMENT_ERROR_CODE)
		}

		if request.NodeId == "" {
			return "", runtime.NewError("node id is required", INVALID_ARGUMENT_ERROR_CODE)
		}

		outcome, view, err := f.Unlock(ctx, logger, nk, userId, request.NodeId)
		if err != nil {
			return "", toRuntimeError(err)
		}

		return marshalResponse(logger, "unlock", &UnlockResponse{Outcome: outcome, State: view})
	}
}

func rpcQuestAdvance(f *NakamaForge) rpcFunc {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userId, err := contextUserID(ctx)
		if err != nil {
			return "", err
		}

		var request QuestAdvanceRequest
		if err := json.Unmarshal([]byte(payload), &request); err != nil {
			logger.Error("Failed to unmarshal QuestAdvanceRequest: %v", err)
			return "", runtime.NewError("failed to unmarshal quest advance request", INVALID_ARGUMENT_ERROR_CODE)
		}

		if request.LineId == "" {
			return "", runtime.NewError("quest line id is required", INVALID_ARGUMENT_ERROR_CODE)
		}

		progress, view, err := f.AdvanceQuest(ctx, logger, nk, userId, request.LineId)
		if err != nil {
			return "", toRuntimeError(err)
		}

		return marshalResponse(logger, "quest advance", &QuestAdvanceResponse{Progress: progress, State: view})
	}
}

func rpcUpgrade(f *NakamaForge) rpcFunc {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userId, err := contextUserID(ctx)
		if err != nil {
			return "", err
		}

		var request UpgradeRequest
		if err := json.Unmarshal([]byte(payload), &request); err != nil {
			logger.Error("Failed to unmarshal UpgradeRequest: %v", err)
			return "", runtime.NewError("failed to unmarshal upgrade request", INVALID_ARGUMENT_ERROR_CODE)
		}

		if request.UpgradeId == "" {
			return "", runtime.NewError("upgrade id is required", INVALID_ARGUMENT_ERROR_CODE)
		}

		outcome, view, err := f.PurchaseUpgrade(ctx, logger, nk, userId, request.UpgradeId)
		if err != nil {
			return "", toRuntimeError(err)
		}

		return marshalResponse(logger, "upgrade", &UpgradeResponse{Outcome: outcome, State: view})
	}
}

func rpcTick(f *NakamaForge) rpcFunc {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userId, err := contextUserID(ctx)
		if err != nil {
			return "", err
		}

		var request TickRequest
		if err := json.Unmarshal([]byte(payload), &request); err != nil {
			logger.Error("Failed to unmarshal TickRequest: %v", err)
			return "", runtime.NewError("failed to unmarshal tick request", INVALID_ARGUMENT_ERROR_CODE)
		}

		// Clamp before converting so huge claims cannot overflow the duration
		elapsedMs := min(request.ElapsedMs, f.config.MaxTickMs)
		earns, view, err := f.Tick(ctx, logger, nk, userId, time.Duration(elapsedMs)*time.Millisecond)
		if err != nil {
			return "", toRuntimeError(err)
		}

		return marshalResponse(logger, "tick", &TickResponse{AutoEarns: earns, State: view})
	}
}
