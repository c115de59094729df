// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"future-self-go/internal/config"
	"future-self-go/internal/model"
	"future-self-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Client 封装 Elasticsearch 客户端与记忆索引名。
type Client struct {
	es        *elasticsearch.Client
	indexName string
}

// NewClient 初始化 Elasticsearch 客户端并确保记忆索引存在。
// vectorDims 为 0 时索引不包含 dense_vector 字段。
func NewClient(ctx context.Context, esCfg config.ElasticsearchConfig, vectorDims int) (*Client, error) {
	raw, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, err
	}
	c := &Client{es: raw, indexName: esCfg.IndexName}
	if err := c.createIndexIfNotExists(ctx, vectorDims); err != nil {
		return nil, err
	}
	return c, nil
}

// IndexName 返回记忆索引名。
func (c *Client) IndexName() string {
	return c.indexName
}

func indexMapping(vectorDims int) string {
	props := map[string]interface{}{
		"memory_id":       map[string]string{"type": "keyword"},
		"user_id":         map[string]string{"type": "keyword"},
		"title":           map[string]string{"type": "text"},
		"description":     map[string]string{"type": "text"},
		"tags":            map[string]string{"type": "keyword"},
		"attachment_text": map[string]string{"type": "text"},
		"significance":    map[string]string{"type": "integer"},
		"created_at":      map[string]string{"type": "date"},
	}
	if vectorDims > 0 {
		props["vector"] = map[string]interface{}{
			"type":       "dense_vector",
			"dims":       vectorDims,
			"index":      true,
			"similarity": "cosine",
		}
	}
	body, _ := json.Marshal(map[string]interface{}{"mappings": map[string]interface{}{"properties": props}})
	return string(body)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (c *Client) createIndexIfNotExists(ctx context.Context, vectorDims int) error {
	res, err := c.es.Indices.Exists([]string{c.indexName}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", c.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = c.es.Indices.Create(
		c.indexName,
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping(vectorDims))),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", c.indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.indexName, res.String())
		return fmt.Errorf("创建索引时 Elasticsearch 返回错误: %s", res.Status())
	}
	log.Infof("索引 '%s' 创建成功", c.indexName)
	return nil
}

// IndexMemory 写入（或覆盖）一条记忆文档，文档 ID 即记忆 ID。
func (c *Client) IndexMemory(ctx context.Context, doc model.MemoryDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      c.indexName,
		DocumentID: doc.MemoryID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("failed to index memory %s: %s", doc.MemoryID, res.Status())
	}
	return nil
}

// DeleteMemory 删除记忆文档，文档不存在时视为成功。
func (c *Client) DeleteMemory(ctx context.Context, memoryID string) error {
	req := esapi.DeleteRequest{
		Index:      c.indexName,
		DocumentID: memoryID,
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to delete memory %s: %s", memoryID, res.Status())
	}
	return nil
}

// searchQuery 构造按 user_id 过滤的全文检索，queryVector 非空时附加 knn 召回。
func searchQuery(userID, query string, queryVector []float32, size int) map[string]interface{} {
	userFilter := map[string]interface{}{"term": map[string]interface{}{"user_id": userID}}
	body := map[string]interface{}{
		"size":    size,
		"_source": []string{"memory_id"},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  query,
						"fields": []string{"title^3", "tags^2", "description", "attachment_text"},
					},
				},
				"filter": userFilter,
			},
		},
	}
	if len(queryVector) > 0 {
		body["knn"] = map[string]interface{}{
			"field":          "vector",
			"query_vector":   queryVector,
			"k":              size,
			"num_candidates": size * 10,
			"filter":         userFilter,
		}
	}
	return body
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				MemoryID string `json:"memory_id"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchMemories 在指定用户的记忆中检索，返回按得分排序的命中。
func (c *Client) SearchMemories(ctx context.Context, userID, query string, queryVector []float32, size int) ([]model.SearchHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(searchQuery(userID, query, queryVector, size)); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.indexName),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("Elasticsearch 检索返回错误: %s", res.String())
		return nil, fmt.Errorf("elasticsearch search returned %s", res.Status())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	hits := make([]model.SearchHit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		id := h.Source.MemoryID
		if id == "" {
			id = h.ID
		}
		hits = append(hits, model.SearchHit{MemoryID: model.ID(id), Score: h.Score})
	}
	return hits, nil
}
