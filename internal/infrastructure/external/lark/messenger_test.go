package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/domain/entity"
)

type fakeMessages struct {
	requests []*larkim.CreateMessageReq
	resp     *larkim.CreateMessageResp
	err      error
}

func (f *fakeMessages) Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestMessenger_Send(t *testing.T) {
	id := "om_1"
	fake := &fakeMessages{resp: &larkim.CreateMessageResp{Data: &larkim.CreateMessageRespData{MessageId: &id}}}
	m := &Messenger{messages: fake, logger: zap.NewNop()}
	user := &entity.User{ID: "dg", LarkOpenID: "ou_dg"}

	require.NoError(t, m.Send(context.Background(), user, "Note SEF à valider", `Objet: "Achat" de fournitures`))
	require.Len(t, fake.requests, 1)

	body := fake.requests[0].Body
	assert.Equal(t, "ou_dg", *body.ReceiveId)
	assert.Equal(t, "text", *body.MsgType)

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(*body.Content), &content))
	assert.Equal(t, "Note SEF à valider\nObjet: \"Achat\" de fournitures", content["text"])
}

func TestMessenger_SkipsUsersWithoutLark(t *testing.T) {
	fake := &fakeMessages{}
	m := &Messenger{messages: fake, logger: zap.NewNop()}

	assert.NoError(t, m.Send(context.Background(), &entity.User{ID: "agent"}, "t", "m"))
	assert.NoError(t, m.Send(context.Background(), nil, "t", "m"))
	assert.Empty(t, fake.requests)
}

func TestMessenger_Failures(t *testing.T) {
	user := &entity.User{ID: "dg", LarkOpenID: "ou_dg"}

	m := &Messenger{messages: &fakeMessages{err: errors.New("timeout")}, logger: zap.NewNop()}
	assert.Error(t, m.Send(context.Background(), user, "t", "m"))

	m = &Messenger{messages: &fakeMessages{resp: &larkim.CreateMessageResp{
		CodeError: larkcore.CodeError{Code: 230002, Msg: "bot not in chat"},
	}}, logger: zap.NewNop()}
	err := m.Send(context.Background(), user, "t", "m")
	assert.ErrorContains(t, err, "230002")
}
