package grpc

import (
	"context"
	"sort"
	"time"

	"github.com/dmitrijs2005/tgtoolkit/internal/archive"
	"github.com/dmitrijs2005/tgtoolkit/internal/clone"
	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type handlerFunc func(ctx context.Context, in *structpb.Struct) (any, error)

func handle[Req any](fn func(context.Context, *Req) (any, error)) handlerFunc {
	return func(ctx context.Context, in *structpb.Struct) (any, error) {
		req := new(Req)
		if err := decode(in, req); err != nil {
			return nil, err
		}
		return fn(ctx, req)
	}
}

func (s *GRPCServer) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		MethodPing: func(context.Context, *structpb.Struct) (any, error) {
			return map[string]string{"status": "OK"}, nil
		},

		MethodListAccounts:     s.listAccounts,
		MethodGetAccount:       handle(s.getAccount),
		MethodRemoveAccount:    handle(s.removeAccount),
		MethodExportCredential: handle(s.exportCredential),
		MethodSwitchAccount:    handle(s.switchAccount),

		MethodRequestCode:       handle(s.requestCode),
		MethodVerifyCode:        handle(s.verifyCode),
		MethodGenerateQR:        handle(s.generateQR),
		MethodPollQR:            handle(s.pollQR),
		MethodImportSession:     handle(s.importSession),
		MethodImportSessionFile: handle(s.importSessionFile),
		MethodImportBotToken:    handle(s.importBotToken),

		MethodListDialogs: handle(s.listDialogs),
		MethodGetMessages: handle(s.getMessages),
		MethodSendMessage: handle(s.sendMessage),

		MethodStartClone:          handle(s.startClone),
		MethodCloneProgress:       handle(s.cloneProgress),
		MethodListCloneOperations: s.listCloneOperations,
		MethodCancelClone:         handle(s.cancelClone),

		MethodExportChat: handle(s.exportChat),

		MethodRegisterChatKey: handle(s.registerChatKey),
		MethodRemoveChatKey:   handle(s.removeChatKey),
		MethodListChatKeys:    s.listChatKeys,
	}
}

func (s *GRPCServer) dispatch(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	h, ok := s.methods[method]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "method %s not implemented", method)
	}
	out, err := h(ctx, in)
	if err != nil {
		return nil, s.toStatus(ctx, method, err)
	}
	res, err := encode(out)
	if err != nil {
		return nil, s.toStatus(ctx, method, err)
	}
	return res, nil
}

// accounts

func (s *GRPCServer) listAccounts(ctx context.Context, _ *structpb.Struct) (any, error) {
	list, err := s.svc.Sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"accounts":          list,
		"active_account_id": s.svc.Sessions.ActiveID(),
	}, nil
}

func (s *GRPCServer) getAccount(ctx context.Context, req *accountRequest) (any, error) {
	return s.svc.Sessions.Get(ctx, req.AccountID)
}

func (s *GRPCServer) removeAccount(ctx context.Context, req *accountRequest) (any, error) {
	if err := s.svc.Sessions.Remove(ctx, req.AccountID); err != nil {
		return nil, err
	}
	return map[string]any{"removed": true, "account_id": req.AccountID}, nil
}

func (s *GRPCServer) exportCredential(ctx context.Context, req *accountRequest) (any, error) {
	cred, err := s.svc.Sessions.ExportCredential(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"account_id": req.AccountID, "session_string": cred}, nil
}

func (s *GRPCServer) switchAccount(ctx context.Context, req *accountRequest) (any, error) {
	return s.svc.Sessions.SwitchActive(ctx, req.AccountID)
}

// auth

func (s *GRPCServer) requestCode(ctx context.Context, req *requestCodeRequest) (any, error) {
	return s.svc.Phone.RequestCode(ctx, req.Phone, req.Name)
}

func (s *GRPCServer) verifyCode(ctx context.Context, req *verifyCodeRequest) (any, error) {
	return s.svc.Phone.VerifyCode(ctx, req.Phone, req.Code, req.Password)
}

func (s *GRPCServer) generateQR(ctx context.Context, req *generateQRRequest) (any, error) {
	return s.svc.QR.Generate(ctx, req.Name)
}

func (s *GRPCServer) pollQR(ctx context.Context, req *pollQRRequest) (any, error) {
	return s.svc.QR.Poll(ctx, req.Token)
}

func (s *GRPCServer) importSession(ctx context.Context, req *importSessionRequest) (any, error) {
	if req.SessionString == "" {
		return nil, common.Validationf("session_string is required")
	}
	return s.svc.Importer.ImportString(ctx, req.SessionString, req.Name)
}

func (s *GRPCServer) importSessionFile(ctx context.Context, req *importSessionFileRequest) (any, error) {
	return s.svc.Importer.ImportFileBytes(ctx, req.Data, req.Name)
}

func (s *GRPCServer) importBotToken(ctx context.Context, req *importBotTokenRequest) (any, error) {
	if req.BotToken == "" {
		return nil, common.Validationf("bot_token is required")
	}
	return s.svc.Importer.ImportBotToken(ctx, req.BotToken, req.Name)
}

// chats

func (s *GRPCServer) listDialogs(ctx context.Context, req *listDialogsRequest) (any, error) {
	chats, err := s.svc.Messages.Dialogs(ctx, req.AccountID, req.Limit)
	if err != nil {
		return nil, err
	}
	if chats == nil {
		chats = []transport.Chat{}
	}
	return map[string]any{"dialogs": chats, "count": len(chats)}, nil
}

func (s *GRPCServer) getMessages(ctx context.Context, req *getMessagesRequest) (any, error) {
	msgs, err := s.svc.Messages.History(ctx, req.AccountID, req.ChatID, transport.HistoryQuery{
		Limit:    req.Limit,
		OffsetID: req.OffsetID,
		MinID:    req.MinID,
		MaxID:    req.MaxID,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"chat_id": req.ChatID, "messages": msgs, "count": len(msgs)}, nil
}

func (s *GRPCServer) sendMessage(ctx context.Context, req *sendMessageRequest) (any, error) {
	return s.svc.Messages.Send(ctx, req.AccountID, req.ChatID, req.Text, req.ReplyTo, req.Plain)
}

// clone

func (s *GRPCServer) startClone(ctx context.Context, req *startCloneRequest) (any, error) {
	mode := req.Mode
	if mode == "" {
		mode = string(clone.ModeReupload)
	}
	return s.svc.Clone.Start(ctx, clone.Request{
		AccountID:     req.AccountID,
		SourceChatID:  req.SourceChatID,
		TargetChatID:  req.TargetChatID,
		Mode:          clone.Mode(mode),
		IncludeMedia:  boolOr(req.IncludeMedia, true),
		IncludePinned: boolOr(req.IncludePinned, true),
		DateFrom:      req.DateFrom,
		DateTo:        req.DateTo,
		Delay:         time.Duration(req.DelaySeconds * float64(time.Second)),
		Password:      req.Password,
	})
}

func (s *GRPCServer) cloneProgress(_ context.Context, req *operationRequest) (any, error) {
	return s.svc.Clone.Progress(req.OperationID)
}

func (s *GRPCServer) listCloneOperations(context.Context, *structpb.Struct) (any, error) {
	ops := s.svc.Clone.Operations()
	if ops == nil {
		ops = []clone.Snapshot{}
	}
	return map[string]any{"operations": ops, "count": len(ops)}, nil
}

func (s *GRPCServer) cancelClone(_ context.Context, req *operationRequest) (any, error) {
	if err := s.svc.Clone.Cancel(req.OperationID); err != nil {
		return nil, err
	}
	return map[string]any{"operation_id": req.OperationID, "cancelled": true}, nil
}

// export

func (s *GRPCServer) exportChat(ctx context.Context, req *exportChatRequest) (any, error) {
	return s.svc.Exporter.Export(ctx, archive.Request{
		AccountID:    req.AccountID,
		ChatID:       req.ChatID,
		Format:       archive.ParseFormat(req.Format),
		IncludeMedia: boolOr(req.IncludeMedia, true),
		DateFrom:     req.DateFrom,
		DateTo:       req.DateTo,
		Limit:        req.Limit,
		Encrypt:      req.Encrypt,
		Password:     req.Password,
		Upload:       req.Upload,
	})
}

// chat keys

func (s *GRPCServer) registerChatKey(_ context.Context, req *chatKeyRequest) (any, error) {
	if req.ChatID == 0 {
		return nil, common.Validationf("chat_id is required")
	}
	if req.Passphrase == "" {
		return nil, common.Validationf("passphrase is required")
	}
	s.svc.Keys.Register(req.ChatID, req.Passphrase)
	return map[string]any{"chat_id": req.ChatID, "registered": true}, nil
}

func (s *GRPCServer) removeChatKey(_ context.Context, req *chatKeyRequest) (any, error) {
	return map[string]any{"chat_id": req.ChatID, "removed": s.svc.Keys.Remove(req.ChatID)}, nil
}

func (s *GRPCServer) listChatKeys(context.Context, *structpb.Struct) (any, error) {
	ids := s.svc.Keys.List()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if ids == nil {
		ids = []int64{}
	}
	return map[string]any{"chat_ids": ids}, nil
}
